// Package camxfer holds the shared vocabulary for the sender and receiver:
// task/connection state, wire protocol constants, and configuration.
package camxfer

import (
	"fmt"
	"sync"
	"time"

	"github.com/alecthomas/units"

	"github.com/harsh-quidich/camxfer/marshal"
	"github.com/harsh-quidich/camxfer/util"
)

// Protocol tags for the wire format.
const (
	ProtoLegacy   byte = 0x01
	ProtoWithDest byte = 0x02
)

// Field size limits enforced by the receiver before allocating anything.
const (
	MaxNameLen = 4096
	MaxDestLen = 4096
)

// ExitOK, ExitConfig, ExitIO, and ExitInterrupted are the process exit codes.
const (
	ExitOK          = 0
	ExitConfig      = 1
	ExitIO          = 2
	ExitInterrupted = 130
)

// SourceEntry is a candidate file discovered by the Scanner. Ready and
// SizeAtProbe are set when the readiness probe passes; everything else is
// fixed at creation.
type SourceEntry struct {
	Name         string
	AbsolutePath string
	SizeAtProbe  int64
	Ready        bool
	FirstSeen    time.Time
}

// TransferTask wraps a promoted SourceEntry with delivery bookkeeping. It is
// owned exclusively by whichever Worker currently holds it.
type TransferTask struct {
	Entry           SourceEntry
	DestinationPath string
	Attempts        int
}

// ConnectionState tracks one worker's persistent socket across its lifetime.
type ConnectionState struct {
	PeerAddr          string
	BytesSentLifetime int64
	LastError         error
	mu                sync.Mutex
}

// AddSent records bytes successfully written on this connection.
func (c *ConnectionState) AddSent(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BytesSentLifetime += n
}

// SetError records the most recent transport error.
func (c *ConnectionState) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastError = err
}

// SessionMode distinguishes the two receiver-side wire protocol variants.
type SessionMode int

// Session modes.
const (
	ModeUnknown SessionMode = iota
	ModeLegacy
	ModeWithDest
)

// SessionState is per-TCP-connection receiver bookkeeping, created on accept
// and destroyed on close or abort.
type SessionState struct {
	Mode            SessionMode
	RemainingInFrame int64
	CurrentTempPath  string
	BytesWritten     int64
}

// ReceiptEvent is handed to the optional Export/Notify hooks and folded into
// the JSON stats summary after a file's atomic rename succeeds.
type ReceiptEvent struct {
	Source      string    `json:"source"`
	Name        string    `json:"name"`
	Path        string    `json:"-"`
	Size        int64     `json:"size"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	FinalizedAt time.Time `json:"finalized_at"`
}

// FinalStatusService is implemented by the optional post-finalize hooks
// (export.S3Upload, notify.Queue). Errors are logged, never fatal.
type FinalStatusService interface {
	Notify(event ReceiptEvent) error
}

// Validator is implemented by the optional ClientRegistry, checking a
// declared source name against a known-camera list before a frame's
// payload is accepted. A nil Validator accepts every source.
type Validator interface {
	IsValid(source string) bool
}

// Stats is the end-of-run summary (optionally emitted as
// JSON when json_stats is set).
type Stats struct {
	FilesSent    int64             `json:"files_sent"`
	FilesFailed  int64             `json:"files_failed"`
	Bytes        int64             `json:"bytes"`
	ElapsedMs    int64             `json:"elapsed_ms"`
	PerFileError map[string]string `json:"per_file_errors,omitempty"`
	mu           sync.Mutex
}

// AddSent records a successful transfer in the running summary.
func (s *Stats) AddSent(bytes int64, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FilesSent++
	s.Bytes += bytes
	s.ElapsedMs += elapsed.Milliseconds()
}

// AddFailed records a terminal per-file failure in the running summary.
func (s *Stats) AddFailed(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FilesFailed++
	if s.PerFileError == nil {
		s.PerFileError = make(map[string]string)
	}
	s.PerFileError[name] = err.Error()
}

// SendConf is the sender's YAML-loaded configuration.
type SendConf struct {
	SrcDir            string
	Host              string
	Port              int
	Pattern           string
	StartAfter        string
	Conns             int
	Lookahead         int
	StableMs          marshal.Duration
	FileWaitMs        marshal.Duration
	MaxFiles          int
	DestPath          string
	PreserveStructure bool
	CleanupPartFiles  bool
	Once              bool
	ChunkBytes        int64
	PollMs            marshal.Duration
	Verbose           bool
	JSONStats         bool
	DrainAfterMs      marshal.Duration
	HealthPort        int
	CacheDir          string
	LogDir            string
	DestTemplate      string
	AgentKey          string
	ConnectTimeoutMs  marshal.Duration
	WriteTimeoutMs    marshal.Duration
}

// UnmarshalYAML accepts chunk_bytes as either a bare integer or a
// human-readable size string ("8MiB"), matching the BinSize
// handling in cmd/conf.go.
func (c *SendConf) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var aux struct {
		SrcDir            string           `yaml:"src_dir"`
		Host              string           `yaml:"host"`
		Port              int              `yaml:"port"`
		Pattern           string           `yaml:"pattern"`
		StartAfter        string           `yaml:"start_after"`
		Conns             int              `yaml:"conns"`
		Lookahead         int              `yaml:"lookahead"`
		StableMs          marshal.Duration `yaml:"stable_ms"`
		FileWaitMs        marshal.Duration `yaml:"file_wait_ms"`
		MaxFiles          int              `yaml:"max_files"`
		DestPath          string           `yaml:"dest_path"`
		PreserveStructure bool             `yaml:"preserve_structure"`
		CleanupPartFiles  bool             `yaml:"cleanup_part_files"`
		Once              bool             `yaml:"once"`
		ChunkBytes        string           `yaml:"chunk_bytes"`
		PollMs            marshal.Duration `yaml:"poll_ms"`
		Verbose           bool             `yaml:"verbose"`
		JSONStats         bool             `yaml:"json_stats"`
		DrainAfterMs      marshal.Duration `yaml:"drain_after_ms"`
		HealthPort        int              `yaml:"health_port"`
		CacheDir          string           `yaml:"cache_dir"`
		LogDir            string           `yaml:"log_dir"`
		DestTemplate      string           `yaml:"dest_template"`
		AgentKey          string           `yaml:"agent_key"`
		ConnectTimeoutMs  marshal.Duration `yaml:"connect_timeout_ms"`
		WriteTimeoutMs    marshal.Duration `yaml:"write_timeout_ms"`
	}
	if err := unmarshal(&aux); err != nil {
		return err
	}
	c.SrcDir = aux.SrcDir
	c.Host = aux.Host
	c.Port = aux.Port
	c.Pattern = aux.Pattern
	c.StartAfter = aux.StartAfter
	c.Conns = aux.Conns
	c.Lookahead = aux.Lookahead
	c.StableMs = aux.StableMs
	c.FileWaitMs = aux.FileWaitMs
	c.MaxFiles = aux.MaxFiles
	c.DestPath = aux.DestPath
	c.PreserveStructure = aux.PreserveStructure
	c.CleanupPartFiles = aux.CleanupPartFiles
	c.Once = aux.Once
	c.PollMs = aux.PollMs
	c.Verbose = aux.Verbose
	c.JSONStats = aux.JSONStats
	c.DrainAfterMs = aux.DrainAfterMs
	c.HealthPort = aux.HealthPort
	c.CacheDir = aux.CacheDir
	c.LogDir = aux.LogDir
	c.DestTemplate = aux.DestTemplate
	c.AgentKey = aux.AgentKey
	c.ConnectTimeoutMs = aux.ConnectTimeoutMs
	c.WriteTimeoutMs = aux.WriteTimeoutMs
	if aux.ChunkBytes != "" {
		n, err := units.ParseBase2Bytes(aux.ChunkBytes)
		if err != nil {
			return fmt.Errorf("parsing chunk_bytes: %w", err)
		}
		c.ChunkBytes = int64(n)
	}
	return nil
}

// sendConfDefaults holds the sender's stated defaults. SetDefaults copies
// each of these onto c wherever c's own field is still the zero value.
var sendConfDefaults = SendConf{
	Pattern:          "*.jpg",
	Conns:            8,
	Lookahead:        4,
	StableMs:         marshal.Duration{Duration: 5 * time.Millisecond},
	FileWaitMs:       marshal.Duration{Duration: 10 * time.Millisecond},
	ChunkBytes:       8 * 1024 * 1024,
	PollMs:           marshal.Duration{Duration: 50 * time.Millisecond},
	DrainAfterMs:     marshal.Duration{Duration: 2 * time.Second},
	ConnectTimeoutMs: marshal.Duration{Duration: 5 * time.Second},
	WriteTimeoutMs:   marshal.Duration{Duration: 30 * time.Second},
}

// SetDefaults fills in zero-valued fields with the sender's stated defaults.
func (c *SendConf) SetDefaults() {
	util.CopyStruct(c, &sendConfDefaults)
}

// Validate fails fast on configuration errors that should be caught at
// startup rather than surfacing mid-run.
func (c *SendConf) Validate() error {
	if c.SrcDir == "" {
		return fmt.Errorf("src_dir is required")
	}
	if c.Host == "" || c.Port == 0 {
		return fmt.Errorf("host and port are required")
	}
	if c.Conns < 1 {
		return fmt.Errorf("conns must be >= 1")
	}
	return nil
}

// RecvConf is the receiver's YAML-loaded configuration.
type RecvConf struct {
	ListenIP         string `yaml:"listen_ip"`
	Port             int    `yaml:"port"`
	OutDir           string `yaml:"out_dir"`
	Workers          int    `yaml:"workers"`
	Reuseport        bool   `yaml:"reuseport"`
	Verbose          bool   `yaml:"verbose"`
	ExpectCountFirst bool   `yaml:"expect_count_first"`
	UseDestPaths     bool   `yaml:"use_dest_paths"`
	RegistryDSN      string `yaml:"registry_dsn"`
	ExportS3Bucket   string `yaml:"export_s3_bucket"`
	NotifySQSQueue   string `yaml:"notify_sqs_queue"`
	HealthPort       int    `yaml:"health_port"`
	LogDir           string `yaml:"log_dir"`
	ExportS3Prefix   string `yaml:"export_s3_prefix"`
	AgentKey         string `yaml:"agent_key"`
	ChunkBytes       int64  `yaml:"chunk_bytes"`
	JSONStats        bool   `yaml:"json_stats"`
}

// recvConfDefaults holds the receiver's stated defaults. SetDefaults copies
// each of these onto c wherever c's own field is still the zero value.
var recvConfDefaults = RecvConf{
	ListenIP:   "0.0.0.0",
	Workers:    16,
	ChunkBytes: 8 * 1024 * 1024,
}

// SetDefaults fills in zero-valued fields with the receiver's stated defaults.
func (c *RecvConf) SetDefaults() {
	util.CopyStruct(c, &recvConfDefaults)
}

// Validate fails fast on configuration errors that should be caught at
// startup rather than surfacing mid-run.
func (c *RecvConf) Validate() error {
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.OutDir == "" {
		return fmt.Errorf("out_dir is required")
	}
	return nil
}

// Logger is the minimal logging surface every package depends on, fulfilled
// by log.General and mock.Logger.
type Logger interface {
	Debug(params ...interface{})
	Info(params ...interface{})
	Error(params ...interface{})
}
