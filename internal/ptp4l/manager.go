// Package ptp4l реализует PTP-модуль движка SyncE поверх linuxptp, запускает ptp4l по
// инстансам и опрашивает их состояние через pmc.
package ptp4l

import (
	"log"
	"os/exec"
	"strconv"
	"sync"

	"github.com/shiwa/timecard-mini/synce/internal/logger"
)

// Job: один процесс ptp4l, обслуживающий один PTP-инстанс.
type Job struct {
	Interface string   // -i eth0
	Domain    int      // -d N
	UDS       string   // --uds_address, чтобы pmc различал инстансы
	Path      string   // путь к ptp4l (по умолчанию "ptp4l")
	Args      []string // доп. аргументы; пусто: -m -s
}

func (j Job) args() []string {
	args := make([]string, 0, 8+len(j.Args))
	args = append(args, "-i", j.Interface, "-d", strconv.Itoa(j.Domain))
	if j.UDS != "" {
		args = append(args, "--uds_address", j.UDS)
	}
	// по умолчанию: только slave, вывод в stdout
	if len(j.Args) == 0 {
		return append(args, "-m", "-s")
	}
	return append(args, j.Args...)
}

// Start запускает ptp4l для каждого job. Один интерфейс: один процесс (дубликаты отбрасываются).
// Возвращает stop(), которую нужно вызвать при выходе.
func Start(jobs []Job, quiet bool) (stop func()) {
	if len(jobs) == 0 {
		return func() {}
	}
	seen := make(map[string]bool)
	var cmds []*exec.Cmd
	for _, j := range jobs {
		if j.Interface == "" || seen[j.Interface] {
			continue
		}
		seen[j.Interface] = true
		path := j.Path
		if path == "" {
			path = "ptp4l"
		}
		cmd := exec.Command(path, j.args()...)
		if !quiet {
			cmd.Stdout = log.Writer()
			cmd.Stderr = log.Writer()
		}
		if err := cmd.Start(); err != nil {
			logger.Warn("ptp4l start %s: %v", j.Interface, err)
			continue
		}
		cmds = append(cmds, cmd)
		logger.Info("ptp4l started: %s -i %s -d %d", path, j.Interface, j.Domain)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, cmd := range cmds {
				if cmd.Process != nil {
					_ = cmd.Process.Kill()
					_ = cmd.Wait()
				}
			}
		})
	}
}
