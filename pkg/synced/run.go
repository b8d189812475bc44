// Package synced запускает демон выбора источника SyncE: драйвер DPLL, движок,
// транспорт ESMC, монитор PTP и SSH-консоль. Используется из cmd/synced.
package synced

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shiwa/timecard-mini/synce/internal/config"
	"github.com/shiwa/timecard-mini/synce/internal/console"
	"github.com/shiwa/timecard-mini/synce/internal/dpll"
	"github.com/shiwa/timecard-mini/synce/internal/esmc"
	"github.com/shiwa/timecard-mini/synce/internal/ethtool"
	"github.com/shiwa/timecard-mini/synce/internal/logger"
	"github.com/shiwa/timecard-mini/synce/internal/ptp4l"
	"github.com/shiwa/timecard-mini/synce/internal/synce"
)

const linkPollInterval = time.Second

// Ports: порты платформы: состояние линка и master/slave PHY.
type Ports interface {
	synce.PHY
	ethtool.LinkReader
}

// OpenClock открывает шину DPLL по секции dpll и проверяет микросхему.
// release освобождает шину; для эмулятора ничего не делает.
func OpenClock(c config.DPLLConfig, slots int) (dev *dpll.Device, release func(), err error) {
	var (
		bus    dpll.Bus
		closer func() error
	)
	switch c.Driver {
	case "", "emulated":
		bus = dpll.NewEmulator()
	case "i2c":
		b, err := dpll.OpenI2C(c.I2C.Bus, c.I2C.Addr)
		if err != nil {
			return nil, nil, err
		}
		bus, closer = b, b.Close
	case "serial":
		b, err := dpll.OpenUART(c.Serial.Device, c.Serial.Baud, c.Serial.ReadTimeout())
		if err != nil {
			return nil, nil, err
		}
		bus, closer = b, b.Close
	default:
		return nil, nil, fmt.Errorf("dpll: unknown driver %q", c.Driver)
	}
	release = func() {
		if closer != nil {
			_ = closer()
		}
	}
	dev, err = dpll.Open(bus, slots)
	if err != nil {
		release()
		return nil, nil, err
	}
	logger.Info("dpll: %s driver, %d slots", driverName(c.Driver), slots)
	return dev, release, nil
}

func driverName(d string) string {
	if d == "" {
		return "emulated"
	}
	return d
}

// OpenPorts строит драйвер портов: ethtool или статический "линк 1G поднят".
func OpenPorts(cfg *config.Config) (p Ports, release func(), err error) {
	if cfg.Link == "static" || len(cfg.Ports) == 0 {
		return ethtool.Static{}, func() {}, nil
	}
	names := make([]string, len(cfg.Ports))
	for i, pc := range cfg.Ports {
		names[i] = pc.Name
	}
	h, err := ethtool.Open(names)
	if err != nil {
		return nil, nil, err
	}
	return h, func() { _ = h.Close() }, nil
}

// Apply переносит настройки конфига в движок через те же сеттеры, что и консоль.
// Опция EEC задаётся до номинаций: от неё зависит проверка overwrite.
func Apply(ctx context.Context, e *synce.Engine, cfg *config.Config) error {
	caps := e.Capabilities()
	sel, err := cfg.SelectionSettings()
	if err != nil {
		return fmt.Errorf("selection: %w", err)
	}
	if err := e.SetSelection(ctx, sel); err != nil {
		return fmt.Errorf("selection: %w", err)
	}
	st, err := cfg.StationSettings()
	if err != nil {
		return err
	}
	if err := e.SetStationClock(ctx, st); err != nil {
		return fmt.Errorf("station clock: %w", err)
	}
	for p, pc := range cfg.Ports {
		if err := e.SetPortSSM(ctx, p, pc.SSM); err != nil {
			return fmt.Errorf("port %s: %w", pc.Name, err)
		}
	}
	for _, nc := range cfg.Nominations {
		n, err := nc.NominationSettings(caps)
		if err != nil {
			return fmt.Errorf("nomination: %w", err)
		}
		if err := e.SetNomination(ctx, nc.Slot, n); err != nil {
			return fmt.Errorf("nomination slot %d: %w", nc.Slot, err)
		}
	}
	if err := e.SetHybrid(ctx, cfg.PTP.Hybrid); err != nil {
		return fmt.Errorf("hybrid: %w", err)
	}
	return nil
}

// RunDaemon запускает демон до отмены ctx. Ошибка конфигурации или открытия
// DPLL возвращается сразу; сбои ESMC и консоли только логируются.
func RunDaemon(ctx context.Context, cfg *config.Config, quiet bool) error {
	if cfg == nil {
		return errors.New("synced: nil config")
	}
	logger.Quiet = quiet
	caps, err := cfg.Capabilities()
	if err != nil {
		return err
	}

	dev, closeClock, err := OpenClock(cfg.DPLL, caps.Slots)
	if err != nil {
		return err
	}
	defer closeClock()

	ports, closePorts, err := OpenPorts(cfg)
	if err != nil {
		return err
	}
	defer closePorts()

	mux := esmc.NewMux(len(caps.Ports))
	opts := []synce.Option{synce.WithPHY(ports), synce.WithTransmitter(mux)}
	var monitor *ptp4l.Monitor
	if len(cfg.PTP.Instances) > 0 {
		monitor = ptp4l.NewMonitor(cfg.PTP.PMCInstances())
		if cfg.PTP.PMCPath != "" {
			monitor.PMC = cfg.PTP.PMCPath
		}
		opts = append(opts, synce.WithPTP(monitor))
	}

	e, err := synce.New(caps, dev, opts...)
	if err != nil {
		return err
	}
	if err := Apply(ctx, e, cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := e.Run(ctx); err != nil && ctx.Err() == nil {
			runErr = err
			cancel()
		}
	}()

	if cfg.ESMC.Enabled {
		for p, pc := range cfg.Ports {
			conn, err := esmc.Open(pc.Name)
			if err != nil {
				logger.Warn("esmc: %v", err)
				continue
			}
			mux.Set(p, conn)
			wg.Add(1)
			go func(p int, conn *esmc.Conn) {
				defer wg.Done()
				defer conn.Close()
				err := conn.Serve(ctx, func(f esmc.Frame) {
					if err := e.ReceiveSSM(ctx, p, f.Code); err != nil && ctx.Err() == nil {
						logger.Warn("esmc %s: %v", conn.Name(), err)
					}
				})
				if err != nil && ctx.Err() == nil {
					logger.Warn("%v", err)
				}
			}(p, conn)
		}
	}

	if len(caps.Ports) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ethtool.Watch(ctx, ports, len(caps.Ports), linkPollInterval, func(p int, ls synce.LinkStatus) {
				logger.Debug("link %s: up=%v speed=%d fiber=%v", caps.Ports[p].Name, ls.Up, ls.Speed, ls.Fiber)
				if err := e.SetLinkStatus(ctx, p, ls); err != nil && ctx.Err() == nil {
					logger.Warn("link %s: %v", caps.Ports[p].Name, err)
				}
			})
		}()
	}

	if monitor != nil {
		stopPtp4l := ptp4l.Start(cfg.PTP.Ptp4lJobs(), quiet)
		defer stopPtp4l()
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.Run(ctx, cfg.PTP.Interval(), e)
		}()
	}

	if cfg.Console.Listen != "" {
		srv, err := console.NewServer(console.NewInterpreter(e), console.Config{
			HostKey:        cfg.Console.HostKey,
			AuthorizedKeys: cfg.Console.AuthorizedKeys,
			Users:          cfg.Console.Users,
		})
		if err != nil {
			logger.Warn("%v", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := srv.ListenAndServe(ctx, cfg.Console.Listen); err != nil {
					logger.Warn("%v", err)
				}
			}()
		}
	}

	logger.Info("started: slots=%d ports=%d ptp=%d esmc=%v", caps.Slots, len(caps.Ports), caps.PTPInstances, cfg.ESMC.Enabled)
	<-ctx.Done()
	wg.Wait()
	if runErr != nil {
		return runErr
	}
	return ctx.Err()
}
