// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package config loads the gateway configuration.
//
// The configuration is a YAML file with global device defaults and a list
// of devices, each of which overrides the defaults as required:
//
//   spool: /var/spool/sms
//   global:
//     international_prefixes: ["358"]
//     validity: 2 days
//   devices:
//     - name: GSM1
//       device: /dev/ttyUSB0
//       incoming: true
//     - name: GSM2
//       socket: 192.168.1.10:5000
//       mode: old
package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/smsgw/pdu"
	"gopkg.in/yaml.v3"
)

// Config is the gateway configuration.
type Config struct {
	// Spool is the root of the spool directories.
	Spool string
	// LogLevel is the logrus level name.
	LogLevel string
	// StatsFile, if set, is periodically rewritten with the device
	// statistics.
	StatsFile string
	Devices   []Device
}

// Telnet holds the login used with telnet connected modems.
type Telnet struct {
	Login          string `yaml:"login"`
	LoginPrompt    string `yaml:"login_prompt"`
	Password       string `yaml:"password"`
	PasswordPrompt string `yaml:"password_prompt"`
}

// Device is the configuration of a single modem.
//
// A Device is passed by value to its worker and is not modified after Load
// returns.
type Device struct {
	Name string `yaml:"name"`

	// One of Device, Socket or Detect locates the modem.
	Device string `yaml:"device"`
	Socket string `yaml:"socket"`
	// Detect is matched against the description of the serial devices.
	Detect string `yaml:"detect"`
	Baud   int    `yaml:"baud"`
	Telnet Telnet `yaml:"telnet"`
	// Trace logs all bytes exchanged with the modem.
	Trace bool `yaml:"trace"`

	// Mode is the pdu mode, new or old.
	Mode string `yaml:"mode"`
	// Init are additional commands, without the AT prefix, issued after
	// the modem is initialised.
	Init []string `yaml:"init"`
	PIN  string   `yaml:"pin"`
	SMSC string   `yaml:"smsc"`

	InternationalPrefixes []string `yaml:"international_prefixes"`
	NationalPrefixes      []string `yaml:"national_prefixes"`

	// Validity is the default validity period, as accepted by
	// pdu.ParseValidity.
	Validity string `yaml:"validity"`
	// Alphabet selects the alphabet for text messages: gsm, ucs2 or auto.
	Alphabet  string `yaml:"alphabet"`
	Autosplit bool   `yaml:"autosplit"`
	Report    bool   `yaml:"report"`

	// Outgoing enables sending from the device's outgoing spool.
	Outgoing bool `yaml:"outgoing"`
	// Incoming enables reading received messages from the modem.
	Incoming bool `yaml:"incoming"`

	// Spool directories, defaulting to subdirectories of the spool root.
	OutgoingDir string `yaml:"outgoing_dir"`
	IncomingDir string `yaml:"incoming_dir"`
	FailedDir   string `yaml:"failed_dir"`
	SentDir     string `yaml:"sent_dir"`
	ReportDir   string `yaml:"report_dir"`
	ConcatDir   string `yaml:"concat_dir"`

	// PurgeAge is the age after which incomplete messages are purged.
	PurgeAge time.Duration `yaml:"purge_age"`
	// Partial delivers the available parts of purged messages.
	Partial bool `yaml:"partial"`

	Tick            time.Duration `yaml:"tick"`
	TimeoutTicks    int           `yaml:"timeout_ticks"`
	QuietTicks      int           `yaml:"quiet_ticks"`
	SMSTimeoutTicks int           `yaml:"sms_timeout_ticks"`
	Retries         int           `yaml:"retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	ReopenThreshold int           `yaml:"reopen_threshold"`
	// SendRetries is the number of cycles a message deferred by the
	// network is retried before it is failed.
	SendRetries int `yaml:"send_retries"`
	// RegistrationRetries bounds the network registration poll.
	RegistrationRetries int           `yaml:"registration_retries"`
	RegistrationDelay   time.Duration `yaml:"registration_delay"`
	PollInterval        time.Duration `yaml:"poll_interval"`

	// Hangup is the command that rejects incoming calls, or none to leave
	// them ringing.
	Hangup            string `yaml:"hangup"`
	Routed            bool   `yaml:"routed"`
	CNMA              bool   `yaml:"cnma"`
	DetectUnsolicited bool   `yaml:"detect_unsolicited"`

	// PDUFile is a file holding a PDU that is processed as if read from
	// the modem, for testing decoding.
	PDUFile string `yaml:"pdu_file"`

	// Blacklist and Whitelist are files of number prefixes that restrict
	// the destinations of outgoing messages.
	Blacklist string `yaml:"blacklist"`
	Whitelist string `yaml:"whitelist"`
	// EventHandler is a command run after each message is sent, failed,
	// received or reported. It is passed the event, the path of the
	// record, and for sent and failed messages any message ids.
	EventHandler string `yaml:"eventhandler"`

	// Resolved values.
	PDUMode      pdu.Mode      `yaml:"-"`
	ValidityCode byte          `yaml:"-"`
	Numbering    pdu.Numbering `yaml:"-"`
}

// Alphabet policies.
const (
	AlphabetGSM  = "gsm"
	AlphabetUCS2 = "ucs2"
	AlphabetAuto = "auto"
)

// DefaultSpool is the spool root used when none is configured.
const DefaultSpool = "/var/spool/sms"

// ErrInvalid indicates a configuration that cannot be used.
var ErrInvalid = errors.New("invalid config")

type file struct {
	Spool     string      `yaml:"spool"`
	LogLevel  string      `yaml:"log_level"`
	StatsFile string      `yaml:"stats_file"`
	Global    yaml.Node   `yaml:"global"`
	Devices   []yaml.Node `yaml:"devices"`
}

// defaultDevice returns the device defaults that the global section
// overrides.
func defaultDevice() Device {
	return Device{
		Baud:                115200,
		Mode:                "new",
		Alphabet:            AlphabetAuto,
		Autosplit:           true,
		Outgoing:            true,
		PurgeAge:            24 * time.Hour,
		Tick:                100 * time.Millisecond,
		TimeoutTicks:        100,
		QuietTicks:          10,
		SMSTimeoutTicks:     600,
		Retries:             2,
		RetryDelay:          time.Second,
		ReopenThreshold:     3,
		SendRetries:         2,
		RegistrationRetries: 10,
		RegistrationDelay:   2 * time.Second,
		PollInterval:        10 * time.Second,
		Hangup:              "AT+CHUP",
		CNMA:                true,
		DetectUnsolicited:   true,
	}
}

// Load reads the configuration file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return cfg, nil
}

// Parse reads the configuration from r.
func Parse(r io.Reader) (*Config, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, err
	}
	cfg := &Config{
		Spool:     f.Spool,
		LogLevel:  f.LogLevel,
		StatsFile: f.StatsFile,
	}
	if cfg.Spool == "" {
		cfg.Spool = DefaultSpool
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	global := defaultDevice()
	if !f.Global.IsZero() {
		if err := f.Global.Decode(&global); err != nil {
			return nil, errors.Wrap(err, "global")
		}
	}
	if len(f.Devices) == 0 {
		return nil, errors.Wrap(ErrInvalid, "no devices")
	}
	names := make(map[string]bool)
	for i, n := range f.Devices {
		d := global
		if err := n.Decode(&d); err != nil {
			return nil, errors.Wrapf(err, "device %d", i+1)
		}
		if d.Name == "" {
			return nil, errors.Wrapf(ErrInvalid, "device %d has no name", i+1)
		}
		if names[d.Name] {
			return nil, errors.Wrapf(ErrInvalid, "duplicate device %s", d.Name)
		}
		names[d.Name] = true
		d.setDefaults(cfg.Spool)
		if err := d.resolve(); err != nil {
			return nil, errors.Wrapf(err, "device %s", d.Name)
		}
		cfg.Devices = append(cfg.Devices, d)
	}
	return cfg, nil
}

// setDefaults fills in the fields left empty, or explicitly zeroed, by the
// configuration file.
func (d *Device) setDefaults(spool string) {
	def := defaultDevice()
	if d.Baud <= 0 {
		d.Baud = def.Baud
	}
	if d.Tick <= 0 {
		d.Tick = def.Tick
	}
	if d.TimeoutTicks <= 0 {
		d.TimeoutTicks = def.TimeoutTicks
	}
	if d.QuietTicks <= 0 {
		d.QuietTicks = def.QuietTicks
	}
	if d.SMSTimeoutTicks <= 0 {
		d.SMSTimeoutTicks = def.SMSTimeoutTicks
	}
	if d.PollInterval <= 0 {
		d.PollInterval = def.PollInterval
	}
	if d.PurgeAge <= 0 {
		d.PurgeAge = def.PurgeAge
	}
	if d.Hangup == "" {
		d.Hangup = def.Hangup
	}
	if d.Alphabet == "" {
		d.Alphabet = def.Alphabet
	}
	if d.OutgoingDir == "" {
		d.OutgoingDir = filepath.Join(spool, "outgoing", d.Name)
	}
	if d.IncomingDir == "" {
		d.IncomingDir = filepath.Join(spool, "incoming")
	}
	if d.FailedDir == "" {
		d.FailedDir = filepath.Join(spool, "failed")
	}
	if d.SentDir == "" {
		d.SentDir = filepath.Join(spool, "sent")
	}
	if d.ReportDir == "" {
		d.ReportDir = filepath.Join(spool, "report")
	}
	if d.ConcatDir == "" {
		d.ConcatDir = filepath.Join(spool, "concat")
	}
}

// resolve validates the textual fields and converts them into their
// resolved form.
func (d *Device) resolve() error {
	n := 0
	for _, s := range []string{d.Device, d.Socket, d.Detect} {
		if s != "" {
			n++
		}
	}
	if n != 1 {
		return errors.Wrap(ErrInvalid, "exactly one of device, socket or detect is required")
	}
	mode, err := pdu.ParseMode(d.Mode)
	if err != nil {
		return err
	}
	d.PDUMode = mode
	v, err := pdu.ParseValidity(d.Validity)
	if err != nil {
		return err
	}
	d.ValidityCode = v
	d.Alphabet = strings.ToLower(d.Alphabet)
	switch d.Alphabet {
	case AlphabetGSM, AlphabetUCS2, AlphabetAuto:
	default:
		return errors.Wrapf(ErrInvalid, "unknown alphabet policy '%s'", d.Alphabet)
	}
	d.Numbering = pdu.Numbering{
		International: d.InternationalPrefixes,
		National:      d.NationalPrefixes,
	}
	if d.Retries < 0 || d.SendRetries < 0 || d.RegistrationRetries < 0 {
		return errors.Wrap(ErrInvalid, "negative retries")
	}
	return nil
}

// Device returns the configuration of the named device.
func (c *Config) Device(name string) (Device, bool) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return Device{}, false
}
