// Package console реализует командный интерфейс управления движком SyncE (show/set/clear)
// и SSH-сервер, через который он доступен.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shiwa/timecard-mini/synce/internal/ssm"
	"github.com/shiwa/timecard-mini/synce/internal/synce"
)

// ErrExit: команда exit/quit.
var ErrExit = errors.New("exit")

const help = `show status | selection | nominations | ports | ptp | station
set selection <key> <value>...   keys: mode source wtr holdover freerun option
set nomination <slot> none
set nomination <slot> source <name> [priority N] [holdoff N] [aneg MODE] [overwrite QL]
set priority <slot> <prio>
set ssm <port> on|off
set station in|out <freq>
set hybrid on|off
clear wtr <slot>
reset
exit
`

// Interpreter исполняет команды над движком.
type Interpreter struct {
	e    *synce.Engine
	caps synce.Capabilities
}

func NewInterpreter(e *synce.Engine) *Interpreter {
	return &Interpreter{e: e, caps: e.Capabilities()}
}

// Exec разбирает и исполняет одну строку. Вывод пишется в w.
func (in *Interpreter) Exec(ctx context.Context, line string, w io.Writer) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	switch strings.ToLower(args[0]) {
	case "show":
		return in.show(ctx, args[1:], w)
	case "set":
		return in.set(ctx, args[1:])
	case "clear":
		if len(args) != 3 || args[1] != "wtr" {
			return fmt.Errorf("usage: clear wtr <slot>")
		}
		slot, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("slot: %w", err)
		}
		return in.e.ClearWTR(ctx, slot)
	case "reset":
		return in.e.ResetToDefaults(ctx)
	case "help", "?":
		_, err := io.WriteString(w, help)
		return err
	case "exit", "quit":
		return ErrExit
	}
	return fmt.Errorf("unknown command %q, try help", args[0])
}

func onOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "enable", "true":
		return true, nil
	case "off", "disable", "false":
		return false, nil
	}
	return false, fmt.Errorf("expected on|off, got %q", s)
}

func (in *Interpreter) port(name string) (int, error) {
	for i, p := range in.caps.Ports {
		if p.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("unknown port %q", name)
}

func (in *Interpreter) set(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: set selection|nomination|priority|ssm|station|hybrid ...")
	}
	switch args[0] {
	case "selection":
		return in.setSelection(ctx, args[1:])
	case "nomination":
		return in.setNomination(ctx, args[1:])
	case "priority":
		if len(args) != 3 {
			return fmt.Errorf("usage: set priority <slot> <prio>")
		}
		slot, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("slot: %w", err)
		}
		prio, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			return fmt.Errorf("priority: %w", err)
		}
		return in.e.SetPriority(ctx, slot, uint(prio))
	case "ssm":
		if len(args) != 3 {
			return fmt.Errorf("usage: set ssm <port> on|off")
		}
		p, err := in.port(args[1])
		if err != nil {
			return err
		}
		en, err := onOff(args[2])
		if err != nil {
			return err
		}
		return in.e.SetPortSSM(ctx, p, en)
	case "station":
		if len(args) != 3 {
			return fmt.Errorf("usage: set station in|out <freq>")
		}
		f, err := synce.ParseFrequency(args[2])
		if err != nil {
			return err
		}
		cfg, err := in.e.StationClock(ctx)
		if err != nil {
			return err
		}
		switch args[1] {
		case "in":
			cfg.In = f
		case "out":
			cfg.Out = f
		default:
			return fmt.Errorf("usage: set station in|out <freq>")
		}
		return in.e.SetStationClock(ctx, cfg)
	case "hybrid":
		if len(args) != 2 {
			return fmt.Errorf("usage: set hybrid on|off")
		}
		en, err := onOff(args[1])
		if err != nil {
			return err
		}
		return in.e.SetHybrid(ctx, en)
	}
	return fmt.Errorf("unknown setting %q", args[0])
}

// pairs разбирает хвост "ключ значение ...".
func pairs(args []string) (map[string]string, error) {
	if len(args)%2 != 0 {
		return nil, fmt.Errorf("expected key value pairs")
	}
	kv := make(map[string]string, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		kv[strings.ToLower(args[i])] = args[i+1]
	}
	return kv, nil
}

func (in *Interpreter) setSelection(ctx context.Context, args []string) error {
	kv, err := pairs(args)
	if err != nil || len(kv) == 0 {
		return fmt.Errorf("usage: set selection <key> <value>...")
	}
	cfg, err := in.e.Selection(ctx)
	if err != nil {
		return err
	}
	for k, v := range kv {
		switch k {
		case "mode":
			cfg.Mode, err = synce.ParseSelectionMode(v)
		case "source":
			cfg.Source, err = strconv.Atoi(v)
		case "wtr":
			var n uint64
			n, err = strconv.ParseUint(v, 10, 32)
			cfg.WTR = uint(n)
		case "holdover":
			cfg.Holdover, err = ssm.ParseQL(v)
		case "freerun":
			cfg.FreeRun, err = ssm.ParseQL(v)
		case "option":
			cfg.Option, err = ssm.ParseOption(v)
		default:
			err = fmt.Errorf("unknown key %q", k)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	return in.e.SetSelection(ctx, cfg)
}

func (in *Interpreter) setNomination(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set nomination <slot> none | source <name> ...")
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("slot: %w", err)
	}
	if args[1] == "none" {
		return in.e.SetNomination(ctx, slot, synce.DefaultNomination())
	}
	kv, err := pairs(args[1:])
	if err != nil {
		return err
	}
	n := synce.DefaultNomination()
	n.Nominated = true
	name, ok := kv["source"]
	if !ok {
		return fmt.Errorf("source is required")
	}
	if n.Source, err = in.caps.ParseSource(name); err != nil {
		return err
	}
	for k, v := range kv {
		switch k {
		case "source":
		case "priority":
			var p uint64
			p, err = strconv.ParseUint(v, 10, 32)
			n.Priority = uint(p)
		case "holdoff":
			var h uint64
			h, err = strconv.ParseUint(v, 10, 32)
			n.Holdoff = uint(h)
		case "aneg":
			n.AnegMode, err = synce.ParseAnegMode(v)
		case "overwrite":
			n.Overwrite, err = ssm.ParseQL(v)
		default:
			err = fmt.Errorf("unknown key %q", k)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	return in.e.SetNomination(ctx, slot, n)
}

func (in *Interpreter) show(ctx context.Context, args []string, w io.Writer) error {
	what := "status"
	if len(args) > 0 {
		what = args[0]
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	var err error
	switch what {
	case "status":
		err = in.showStatus(ctx, tw)
	case "selection":
		err = in.showSelection(ctx, tw)
	case "nominations", "nomination":
		err = in.showNominations(ctx, tw)
	case "ports", "port":
		err = in.showPorts(ctx, tw)
	case "ptp":
		err = in.showPTP(ctx, tw)
	case "station":
		var st synce.StationClockConfig
		if st, err = in.e.StationClock(ctx); err == nil {
			fmt.Fprintf(tw, "input\t%v\noutput\t%v\n", st.In, st.Out)
		}
	default:
		return fmt.Errorf("unknown item %q", what)
	}
	if err != nil {
		return err
	}
	return tw.Flush()
}

func (in *Interpreter) showStatus(ctx context.Context, w io.Writer) error {
	st, err := in.e.Status(ctx)
	if err != nil {
		return err
	}
	ql, err := in.e.SelectedQL(ctx)
	if err != nil {
		return err
	}
	src := "internal"
	if st.Source > 0 {
		src = strconv.Itoa(st.Source)
	}
	port := "-"
	if st.Port >= 0 {
		port = in.caps.SourceName(st.Port)
	}
	fmt.Fprintf(w, "selected source\t%s\n", src)
	fmt.Fprintf(w, "selected port\t%s\n", port)
	fmt.Fprintf(w, "selected QL\t%v\n", ql)
	fmt.Fprintf(w, "state\t%v\n", st.State)
	fmt.Fprintf(w, "clock input\t%d\n", st.ClockInput)
	fmt.Fprintf(w, "LOL\t%v\nLOSX\t%v\nDHOLD\t%v\n", st.LOL, st.LOSX, st.DHOLD)
	return nil
}

func (in *Interpreter) showSelection(ctx context.Context, w io.Writer) error {
	cfg, err := in.e.Selection(ctx)
	if err != nil {
		return err
	}
	hy, err := in.e.Hybrid(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "mode\t%v\nsource\t%d\nwtr\t%d min\n", cfg.Mode, cfg.Source, cfg.WTR)
	fmt.Fprintf(w, "holdover\t%v\nfreerun\t%v\noption\t%v\nhybrid\t%v\n", cfg.Holdover, cfg.FreeRun, cfg.Option, hy)
	return nil
}

func (in *Interpreter) showNominations(ctx context.Context, w io.Writer) error {
	fmt.Fprintln(w, "slot\tsource\tprio\tholdoff\taneg\toverwrite\tQL\tSF\tLOCS\tSSM bad\tWTR")
	for slot := 1; slot <= in.caps.Slots; slot++ {
		n, err := in.e.Nomination(ctx, slot)
		if err != nil {
			return err
		}
		st, err := in.e.NominationStatus(ctx, slot)
		if err != nil {
			return err
		}
		src := "-"
		if n.Nominated {
			src = in.caps.SourceName(n.Source)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%v\t%v\t%v\t%v\t%v\t%v\t%v\n",
			slot, src, n.Priority, n.Holdoff, n.AnegMode, n.Overwrite, st.QL, st.SF, st.LOCS, st.SSMBad, st.WTRActive)
	}
	return nil
}

func (in *Interpreter) showPorts(ctx context.Context, w io.Writer) error {
	fmt.Fprintln(w, "port\tssm\trx QL\ttx\tloss of ESMC\taneg master")
	for p, pc := range in.caps.Ports {
		en, err := in.e.PortSSM(ctx, p)
		if err != nil {
			return err
		}
		st, err := in.e.PortStatus(ctx, p)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%v\t%v\t%v\t%v\t%v\n", pc.Name, en, st.RxQL, st.TxCode, st.LossOfESMC, st.AnegMaster)
	}
	return nil
}

func (in *Interpreter) showPTP(ctx context.Context, w io.Writer) error {
	bm, err := in.e.BestMaster(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "instance\tclock class\trx QL\tPTSF\tbest master")
	for i := 0; i < in.caps.PTPInstances; i++ {
		st, err := in.e.PTPStatus(ctx, i)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "ptp%d\t%d\t%v\t%v\t%v\n", i, st.ClockClass, st.RxQL, st.PTSF, bm == i)
	}
	return nil
}
