// Package config описывает YAML-конфигурацию synced: порты, номинации, выбор источника,
// станционный вход/выход, PTP, драйвер DPLL, ESMC и консоль.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/shiwa/timecard-mini/synce/internal/ptp4l"
	"github.com/shiwa/timecard-mini/synce/internal/ssm"
	"github.com/shiwa/timecard-mini/synce/internal/synce"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "synced-config.json"

// Config: конфигурация synced.
type Config struct {
	Slots        int                `yaml:"slots"`
	Link         string             `yaml:"link"` // ethtool | static
	Ports        []PortConfig       `yaml:"ports,omitempty"`
	Nominations  []NominationConfig `yaml:"nominations,omitempty"`
	Selection    SelectionConfig    `yaml:"selection"`
	StationClock StationClockConfig `yaml:"station_clock"`
	PTP          PTPConfig          `yaml:"ptp"`
	DPLL         DPLLConfig         `yaml:"dpll"`
	ESMC         ESMCConfig         `yaml:"esmc"`
	Console      ConsoleConfig      `yaml:"console"`
}

// PortConfig: Ethernet-порт; порядок в списке задаёт номер порта.
type PortConfig struct {
	Name  string `yaml:"name"`
	Kind  string `yaml:"kind,omitempty"`  // copper1g | fiber | dnu-only
	Slots []int  `yaml:"slots,omitempty"` // пусто: любой слот
	SSM   bool   `yaml:"ssm"`
}

// NominationConfig: источник в слоте. Source: имя порта, "station" или "ptpN".
type NominationConfig struct {
	Slot      int    `yaml:"slot"`
	Source    string `yaml:"source"`
	Priority  uint   `yaml:"priority"`
	Aneg      string `yaml:"aneg,omitempty"`
	Holdoff   uint   `yaml:"holdoff"` // ×100 мс
	Overwrite string `yaml:"overwrite,omitempty"`
}

type SelectionConfig struct {
	Mode     string `yaml:"mode"`
	Source   int    `yaml:"source"`
	WTR      uint   `yaml:"wtr"` // минуты
	Holdover string `yaml:"holdover"`
	FreeRun  string `yaml:"freerun"`
	Option   string `yaml:"option"`
}

type StationClockConfig struct {
	Input bool   `yaml:"input"` // на плате есть станционный вход
	Type  int    `yaml:"type"`
	In    string `yaml:"in"`
	Out   string `yaml:"out"`
}

type PTPConfig struct {
	Hybrid       bool          `yaml:"hybrid"`
	PollInterval string        `yaml:"poll_interval,omitempty"`
	PMCPath      string        `yaml:"pmc_path,omitempty"`
	Instances    []PTPInstance `yaml:"instances,omitempty"`
}

// PTPInstance: один ptp4l; номер в списке: номер инстанса.
type PTPInstance struct {
	Interface  string   `yaml:"interface,omitempty"`
	Domain     int      `yaml:"domain"`
	UDS        string   `yaml:"uds,omitempty"`
	StartPtp4l bool     `yaml:"start_ptp4l"`
	Ptp4lPath  string   `yaml:"ptp4l_path,omitempty"`
	Ptp4lArgs  []string `yaml:"ptp4l_args,omitempty"`
}

type DPLLConfig struct {
	Driver   string       `yaml:"driver"` // emulated | i2c | serial
	OptionII bool         `yaml:"option_ii"`
	I2C      I2CConfig    `yaml:"i2c"`
	Serial   SerialConfig `yaml:"serial"`
}

type I2CConfig struct {
	Bus  string `yaml:"bus"`
	Addr uint16 `yaml:"addr"`
}

type SerialConfig struct {
	Device  string `yaml:"device"`
	Baud    int    `yaml:"baud"`
	Timeout string `yaml:"timeout"`
}

type ESMCConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ConsoleConfig: SSH-консоль. Пустой Listen: консоль выключена.
type ConsoleConfig struct {
	Listen         string            `yaml:"listen,omitempty"`
	HostKey        string            `yaml:"host_key,omitempty"`
	AuthorizedKeys string            `yaml:"authorized_keys,omitempty"`
	Users          map[string]string `yaml:"users,omitempty"`
}

// Default возвращает конфиг по умолчанию: 5 слотов без номинаций, автоматический
// возвратный режим, SSM выключен, станционный вход/выход выключены.
func Default() *Config {
	sel := synce.DefaultSelection()
	return &Config{
		Slots: 5,
		Link:  "ethtool",
		Selection: SelectionConfig{
			Mode:     sel.Mode.String(),
			Source:   sel.Source,
			WTR:      sel.WTR,
			Holdover: sel.Holdover.String(),
			FreeRun:  sel.FreeRun.String(),
			Option:   sel.Option.String(),
		},
		StationClock: StationClockConfig{
			In:  synce.FreqDisabled.String(),
			Out: synce.FreqDisabled.String(),
		},
		PTP: PTPConfig{PollInterval: "1s"},
		DPLL: DPLLConfig{
			Driver: "emulated",
			I2C:    I2CConfig{Bus: "1", Addr: 0x5b},
			Serial: SerialConfig{Device: "/dev/ttyUSB0", Baud: 115200, Timeout: "500ms"},
		},
		ESMC: ESMCConfig{Enabled: true},
	}
}

// Load читает YAML, проверяет его по схеме и подставляет умолчания.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse: Load для данных в памяти.
func Parse(data []byte) (*Config, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	// отсутствующие ключи сохраняют значения Default
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(c)
	return c, nil
}

// Save пишет конфиг в YAML.
func Save(path string, c *Config) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Validate проверяет YAML по встроенной JSON-схеме. YAML сначала приводится к JSON,
// чтобы числа и отображения имели типы, которые ожидает валидатор.
func Validate(data []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if doc == nil {
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config to json: %w", err)
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("config to json: %w", err)
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyDefaults(c *Config) {
	d := Default()
	if c.Slots == 0 {
		c.Slots = d.Slots
	}
	if c.Link == "" {
		c.Link = d.Link
	}
	if c.Selection.Mode == "" {
		c.Selection.Mode = d.Selection.Mode
	}
	if c.Selection.Source == 0 {
		c.Selection.Source = d.Selection.Source
	}
	if c.Selection.Holdover == "" {
		c.Selection.Holdover = d.Selection.Holdover
	}
	if c.Selection.FreeRun == "" {
		c.Selection.FreeRun = d.Selection.FreeRun
	}
	if c.Selection.Option == "" {
		c.Selection.Option = d.Selection.Option
	}
	if c.StationClock.In == "" {
		c.StationClock.In = d.StationClock.In
	}
	if c.StationClock.Out == "" {
		c.StationClock.Out = d.StationClock.Out
	}
	if c.PTP.PollInterval == "" {
		c.PTP.PollInterval = d.PTP.PollInterval
	}
	if c.DPLL.Driver == "" {
		c.DPLL.Driver = d.DPLL.Driver
	}
	if c.DPLL.I2C.Bus == "" {
		c.DPLL.I2C.Bus = d.DPLL.I2C.Bus
	}
	if c.DPLL.I2C.Addr == 0 {
		c.DPLL.I2C.Addr = d.DPLL.I2C.Addr
	}
	if c.DPLL.Serial.Device == "" {
		c.DPLL.Serial.Device = d.DPLL.Serial.Device
	}
	if c.DPLL.Serial.Baud == 0 {
		c.DPLL.Serial.Baud = d.DPLL.Serial.Baud
	}
	if c.DPLL.Serial.Timeout == "" {
		c.DPLL.Serial.Timeout = d.DPLL.Serial.Timeout
	}
}

// Capabilities строит возможности платформы для движка.
func (c *Config) Capabilities() (synce.Capabilities, error) {
	caps := synce.Capabilities{
		Slots:            c.Slots,
		PTPInstances:     len(c.PTP.Instances),
		StationClock:     c.StationClock.Input,
		StationClockType: c.StationClock.Type,
		OptionII:         c.DPLL.OptionII,
	}
	for _, p := range c.Ports {
		kind := synce.PortCopper1G
		if p.Kind != "" {
			k, err := synce.ParsePortKind(p.Kind)
			if err != nil {
				return synce.Capabilities{}, fmt.Errorf("port %s: %w", p.Name, err)
			}
			kind = k
		}
		caps.Ports = append(caps.Ports, synce.PortCaps{Name: p.Name, Kind: kind, Slots: p.Slots})
	}
	return caps, nil
}

// SelectionSettings переводит секцию selection в настройки движка.
func (c *Config) SelectionSettings() (synce.SelectionConfig, error) {
	s := c.Selection
	mode, err := synce.ParseSelectionMode(s.Mode)
	if err != nil {
		return synce.SelectionConfig{}, err
	}
	ho, err := ssm.ParseQL(s.Holdover)
	if err != nil {
		return synce.SelectionConfig{}, fmt.Errorf("holdover: %w", err)
	}
	fr, err := ssm.ParseQL(s.FreeRun)
	if err != nil {
		return synce.SelectionConfig{}, fmt.Errorf("freerun: %w", err)
	}
	opt, err := ssm.ParseOption(s.Option)
	if err != nil {
		return synce.SelectionConfig{}, err
	}
	return synce.SelectionConfig{Mode: mode, Source: s.Source, WTR: s.WTR, Holdover: ho, FreeRun: fr, Option: opt}, nil
}

// NominationSettings переводит номинацию; имена источников разрешаются по caps.
func (n NominationConfig) NominationSettings(caps synce.Capabilities) (synce.Nomination, error) {
	src, err := caps.ParseSource(n.Source)
	if err != nil {
		return synce.Nomination{}, fmt.Errorf("slot %d: %w", n.Slot, err)
	}
	aneg, err := synce.ParseAnegMode(n.Aneg)
	if err != nil {
		return synce.Nomination{}, fmt.Errorf("slot %d: %w", n.Slot, err)
	}
	ow := ssm.QLNone
	if n.Overwrite != "" {
		if ow, err = ssm.ParseQL(n.Overwrite); err != nil {
			return synce.Nomination{}, fmt.Errorf("slot %d: overwrite: %w", n.Slot, err)
		}
	}
	return synce.Nomination{
		Nominated: true,
		Source:    src,
		Priority:  n.Priority,
		AnegMode:  aneg,
		Holdoff:   n.Holdoff,
		Overwrite: ow,
	}, nil
}

// StationSettings переводит секцию station_clock.
func (c *Config) StationSettings() (synce.StationClockConfig, error) {
	in, err := synce.ParseFrequency(c.StationClock.In)
	if err != nil {
		return synce.StationClockConfig{}, fmt.Errorf("station in: %w", err)
	}
	out, err := synce.ParseFrequency(c.StationClock.Out)
	if err != nil {
		return synce.StationClockConfig{}, fmt.Errorf("station out: %w", err)
	}
	return synce.StationClockConfig{In: in, Out: out}, nil
}

// Ptp4lJobs: задания ptp4l для инстансов с start_ptp4l: true.
func (c *PTPConfig) Ptp4lJobs() []ptp4l.Job {
	var jobs []ptp4l.Job
	for _, in := range c.Instances {
		if in.StartPtp4l && in.Interface != "" {
			jobs = append(jobs, ptp4l.Job{Interface: in.Interface, Domain: in.Domain, UDS: in.UDS, Path: in.Ptp4lPath, Args: in.Ptp4lArgs})
		}
	}
	return jobs
}

// PMCInstances: адреса инстансов для опроса pmc.
func (c *PTPConfig) PMCInstances() []ptp4l.Instance {
	out := make([]ptp4l.Instance, len(c.Instances))
	for i, in := range c.Instances {
		out[i] = ptp4l.Instance{Domain: in.Domain, UDS: in.UDS}
	}
	return out
}

// Interval разбирает poll_interval; неверное или пустое значение: 1 с.
func (c *PTPConfig) Interval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// ReadTimeout: таймаут ответа UART-моста.
func (s SerialConfig) ReadTimeout() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}
