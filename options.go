package ncfs

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Representation selects how a variable's array is serialized in its
// data file.
type Representation string

const (
	// ReprBinary exposes raw elements in the configured byte order.
	ReprBinary Representation = "binary"

	// ReprText exposes one fixed-width decimal value per line.
	ReprText Representation = "text"
)

// MountOptions configures the mount and the shape of the virtual tree.
//
// Use DefaultMountOptions() to get a set of sensible defaults, then customize
// as needed, either directly or through Set with "-o" style key/value pairs.
type MountOptions struct {
	// Mountpoint is the directory where the filesystem will be mounted
	Mountpoint string

	// AllowOther allows other users to access the mounted filesystem
	// Requires 'user_allow_other' in /etc/fuse.conf on Linux
	AllowOther bool

	// DefaultPermissions enables kernel permission checking
	DefaultPermissions bool

	// UID/GID override file ownership
	UID uint32
	GID uint32

	// AttrTimeout sets attribute cache timeout
	AttrTimeout time.Duration

	// EntryTimeout sets directory entry cache timeout
	EntryTimeout time.Duration

	// NegativeTimeout sets how long failed lookups are cached
	NegativeTimeout time.Duration

	// FSName is the filesystem subtype shown in the mount table (fuse.<FSName>).
	// The source path is shown as the mounted device.
	FSName string

	// Options contains additional FUSE options
	Options []string

	// Debug enables go-fuse request tracing
	Debug bool

	// Repr selects the data file representation
	Repr Representation

	// BigEndian serializes binary data big-endian instead of little-endian
	BigEndian bool

	// Dimensions adds a "dimensions" file to every variable directory
	Dimensions bool

	// CacheSize bounds the number of resolved paths kept in memory
	CacheSize int

	// Logger receives diagnostic messages. Nil uses logrus.StandardLogger().
	Logger logrus.FieldLogger

	// OpenSource opens the source file. Nil opens it as netCDF.
	OpenSource func(path string) (DataFile, error)
}

// DefaultMountOptions returns mount options with sensible defaults.
//
// Default values:
//   - AttrTimeout, EntryTimeout: 1 minute (the tree never changes while mounted)
//   - NegativeTimeout: 1 minute
//   - Repr: binary, little-endian
//   - CacheSize: 4096 resolved paths
//   - DefaultPermissions: true (kernel enforces the 0444/0555 modes)
func DefaultMountOptions(mountpoint string) *MountOptions {
	return &MountOptions{
		Mountpoint:         mountpoint,
		DefaultPermissions: true,
		AttrTimeout:        time.Minute,
		EntryTimeout:       time.Minute,
		NegativeTimeout:    time.Minute,
		FSName:             "ncfs",
		Repr:               ReprBinary,
		CacheSize:          4096,
	}
}

// ByteOrder returns the byte order of binary data files.
func (o *MountOptions) ByteOrder() binary.ByteOrder {
	if o.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Validate checks option values that Set cannot check on its own.
func (o *MountOptions) Validate() error {
	switch o.Repr {
	case ReprBinary, ReprText:
	default:
		return fmt.Errorf("invalid representation %q", o.Repr)
	}
	if o.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative")
	}
	return nil
}

func (o *MountOptions) logger() logrus.FieldLogger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

// optionSetters maps "-o" keys to their parsers.
var optionSetters = map[string]func(o *MountOptions, value string) error{
	"repr": func(o *MountOptions, value string) error {
		switch r := Representation(strings.ToLower(value)); r {
		case ReprBinary, ReprText:
			o.Repr = r
			return nil
		}
		return fmt.Errorf("invalid representation %q", value)
	},
	"byteorder": func(o *MountOptions, value string) error {
		switch strings.ToLower(value) {
		case "little", "le":
			o.BigEndian = false
		case "big", "be":
			o.BigEndian = true
		default:
			return fmt.Errorf("invalid byte order %q", value)
		}
		return nil
	},
	"dimensions":          boolOption(func(o *MountOptions, b bool) { o.Dimensions = b }),
	"allow_other":         boolOption(func(o *MountOptions, b bool) { o.AllowOther = b }),
	"default_permissions": boolOption(func(o *MountOptions, b bool) { o.DefaultPermissions = b }),
	"debug":               boolOption(func(o *MountOptions, b bool) { o.Debug = b }),
	"cache_size": func(o *MountOptions, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid cache_size %q", value)
		}
		o.CacheSize = n
		return nil
	},
	"attr_timeout":     durationOption(func(o *MountOptions, d time.Duration) { o.AttrTimeout = d }),
	"entry_timeout":    durationOption(func(o *MountOptions, d time.Duration) { o.EntryTimeout = d }),
	"negative_timeout": durationOption(func(o *MountOptions, d time.Duration) { o.NegativeTimeout = d }),
	"fsname": func(o *MountOptions, value string) error {
		if value == "" {
			return fmt.Errorf("fsname must not be empty")
		}
		o.FSName = value
		return nil
	},
	"uid": idOption(func(o *MountOptions, id uint32) { o.UID = id }),
	"gid": idOption(func(o *MountOptions, id uint32) { o.GID = id }),
	// Always read-only; accepted for compatibility with mount(8) habits.
	"ro": func(o *MountOptions, value string) error { return nil },
	"rw": func(o *MountOptions, value string) error { return nil },
}

// OptionKeys returns the option names understood by Set, sorted.
func OptionKeys() []string {
	keys := make([]string, 0, len(optionSetters))
	for k := range optionSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set applies one "-o" option. A bare flag (empty value) means true for
// boolean options. Unknown keys are passed through to FUSE.
func (o *MountOptions) Set(key, value string) error {
	setter, ok := optionSetters[key]
	if !ok {
		if value == "" {
			o.Options = append(o.Options, key)
		} else {
			o.Options = append(o.Options, key+"="+value)
		}
		return nil
	}
	if err := setter(o, value); err != nil {
		return fmt.Errorf("option %s: %w", key, err)
	}
	return nil
}

// SplitOptions splits a "-o" argument such as "repr=text,allow_other"
// into key/value pairs, in order.
func SplitOptions(s string) [][2]string {
	var out [][2]string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, _ := strings.Cut(item, "=")
		out = append(out, [2]string{strings.TrimSpace(key), strings.TrimSpace(value)})
	}
	return out
}

func boolOption(apply func(*MountOptions, bool)) func(*MountOptions, string) error {
	return func(o *MountOptions, value string) error {
		if value == "" {
			apply(o, true)
			return nil
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		apply(o, b)
		return nil
	}
}

func durationOption(apply func(*MountOptions, time.Duration)) func(*MountOptions, string) error {
	return func(o *MountOptions, value string) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			// Plain numbers are seconds, as in libfuse.
			secs, ferr := strconv.ParseFloat(value, 64)
			if ferr != nil || secs < 0 {
				return fmt.Errorf("invalid duration %q", value)
			}
			d = time.Duration(secs * float64(time.Second))
		}
		if d < 0 {
			return fmt.Errorf("invalid duration %q", value)
		}
		apply(o, d)
		return nil
	}
}

func idOption(apply func(*MountOptions, uint32)) func(*MountOptions, string) error {
	return func(o *MountOptions, value string) error {
		id, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid id %q", value)
		}
		apply(o, uint32(id))
		return nil
	}
}
