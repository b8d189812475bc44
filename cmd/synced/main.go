// synced: демон выбора источника синхронизации SyncE (G.781): номинации слотов DPLL,
// обработка SSM/ESMC, hold-off и WTR, арбитраж по QL и приоритету, hybrid PTP.
//
// Использование:
//
//	synced -configure -config synced.yml  записать конфиг по умолчанию и выйти
//	synced -run -config synced.yml        запуск daemon
//	synced -list-serial                   список последовательных портов (UART-мост DPLL)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.bug.st/serial"

	"github.com/shiwa/timecard-mini/synce/internal/config"
	"github.com/shiwa/timecard-mini/synce/internal/logger"
	"github.com/shiwa/timecard-mini/synce/pkg/synced"
)

const defaultConfig = "synced.yml"

func main() {
	configure := flag.Bool("configure", false, "записать конфиг по умолчанию в -config и выйти")
	run := flag.Bool("run", false, "запуск daemon")
	configPath := flag.String("config", "", "путь к YAML конфигу (по умолчанию "+defaultConfig+")")
	listSerial := flag.Bool("list-serial", false, "показать последовательные порты и выйти")
	driver := flag.String("dpll", "", "драйвер DPLL: emulated, i2c, serial (переопределяет config)")
	quiet := flag.Bool("quiet", false, "меньше вывода")
	verbose := flag.Bool("verbose", false, "отладочный вывод")
	flag.Parse()
	logger.Verbose = *verbose

	if *listSerial {
		runListSerial()
		return
	}

	if *configure {
		runConfigure(*configPath, *quiet)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *driver != "" {
		cfg.DPLL.Driver = *driver
	}

	if *run {
		runDaemonWithShutdown(cfg, *quiet)
		return
	}

	flag.Usage()
	if !*quiet {
		fmt.Println("synced: для запуска daemon используйте -run.")
	}
}

// loadConfig читает конфиг; файла по умолчанию может не быть, тогда берутся умолчания.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = defaultConfig
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func runConfigure(path string, quiet bool) {
	if path == "" {
		path = defaultConfig
	}
	if err := config.Save(path, config.Default()); err != nil {
		log.Fatalf("запись конфига: %v", err)
	}
	if !quiet {
		fmt.Printf("конфиг по умолчанию записан в %s\n", path)
	}
}

func runListSerial() {
	ports, err := serial.GetPortsList()
	if err != nil {
		log.Fatalf("список портов: %v", err)
	}
	if len(ports) == 0 {
		fmt.Println("последовательные порты не найдены")
		return
	}
	for _, p := range ports {
		fmt.Println(p)
	}
}

// runDaemonWithShutdown запускает synced.RunDaemon с контекстом; по SIGINT/SIGTERM
// контекст отменяется, ptp4l и сессии консоли останавливаются.
func runDaemonWithShutdown(cfg *config.Config, quiet bool) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("получен сигнал %v, завершение...", sig)
		cancel()
	}()

	if err := synced.RunDaemon(ctx, cfg, quiet); err != nil && err != context.Canceled {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
