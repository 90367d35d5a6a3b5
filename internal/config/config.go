// internal/config/config.go
package config

// Config is the root of the YAML file.
type Config struct {
	Logging      LoggingConfig       `yaml:"logging"`
	Cycle        CycleConfig         `yaml:"cycle"`
	StatusMemory *StatusMemoryConfig `yaml:"status_memory"`
	Bridges      []BridgeConfig      `yaml:"bridges"`
}

// ---- AMBIENT ----

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

type CycleConfig struct {
	TimeMs int `yaml:"time_ms"`
}

// StatusMemoryConfig is the Modbus memory that receives device status blocks
// (optional, opt-in per device via status_slot).
type StatusMemoryConfig struct {
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- BRIDGE (one physical bus) ----

type BridgeConfig struct {
	ID               string          `yaml:"id"`
	Transport        TransportConfig `yaml:"transport"`
	Defective        DefectiveConfig `yaml:"defective"`
	LowTasksPerCycle int             `yaml:"low_tasks_per_cycle"`
	Devices          []DeviceConfig  `yaml:"devices"`
}

type TransportConfig struct {
	Protocol      string `yaml:"protocol"` // tcp | rtu
	Endpoint      string `yaml:"endpoint"` // host:port or serial device
	TimeoutMs     int    `yaml:"timeout_ms"`
	IdleTimeoutMs int    `yaml:"idle_timeout_ms"`

	// rtu only
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"` // N | E | O
	RS485    bool   `yaml:"rs485"`
}

type DefectiveConfig struct {
	Threshold int `yaml:"threshold"`
	BackoffMs int `yaml:"backoff_ms"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	ID       string       `yaml:"id"`
	UnitID   uint8        `yaml:"unit_id"`
	Disabled bool         `yaml:"disabled"`
	Tasks    []TaskConfig `yaml:"tasks"`

	// SunSpec devices describe their own register map; tasks must be empty.
	SunSpec *SunSpecConfig `yaml:"sunspec"`

	// Device status block (optional, opt-in)
	StatusSlot *uint16 `yaml:"status_slot"`
	DeviceName string  `yaml:"device_name"`
}

type SunSpecConfig struct {
	Base        uint16   `yaml:"base"`         // 0 means 40000
	CommonBlock int      `yaml:"common_block"` // models after the n-th common model; 0 means 1
	Models      []uint16 `yaml:"models"`       // empty means every supported model
}

// ---- REGISTER MAP ----

type TaskConfig struct {
	FC       uint8           `yaml:"fc"`
	Priority string          `yaml:"priority"` // reads only: high | low | once
	Elements []ElementConfig `yaml:"elements"`
}

type ElementConfig struct {
	Address   uint16   `yaml:"address"`
	Type      string   `yaml:"type"`
	Length    uint16   `yaml:"length"` // string and dummy only
	WordOrder string   `yaml:"word_order"`
	ByteOrder string   `yaml:"byte_order"`
	Converter []string `yaml:"converter"`
	Channel   string   `yaml:"channel"`
}
