package obslog

import (
	"log/slog"

	"github.com/ctkgo/deviceaccess/pkg/version"
)

// Standard field keys, kept consistent across every backend and
// decorator so log aggregation can query by them regardless of which
// backend type emitted the record.
const (
	KeyTraceID           = "trace_id"
	KeyBackend           = "backend"
	KeyBackendType       = "backend_type"
	KeyRegisterPath      = "register_path"
	KeyTransferElementID = "transfer_element_id"

	KeyBar            = "bar"
	KeyAddress        = "address"
	KeyNumElements    = "num_elements"
	KeyPlugin         = "plugin"
	KeyInterruptID    = "interrupt_id"
	KeyVersionNumber  = "version_number"
	KeyDataLost       = "data_lost"
	KeyDurationMs     = "duration_ms"
	KeyError          = "error"
	KeyTransferCount  = "transfer_count"
	KeyMergedElements = "merged_elements"
)

func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

func Backend(name string) slog.Attr { return slog.String(KeyBackend, name) }

func BackendType(t string) slog.Attr { return slog.String(KeyBackendType, t) }

func RegisterPath(path string) slog.Attr { return slog.String(KeyRegisterPath, path) }

func TransferElementID(id string) slog.Attr { return slog.String(KeyTransferElementID, id) }

func Bar(bar uint32) slog.Attr { return slog.Any(KeyBar, bar) }

func Address(addr uint64) slog.Attr { return slog.Uint64(KeyAddress, addr) }

func NumElements(n int) slog.Attr { return slog.Int(KeyNumElements, n) }

func Plugin(name string) slog.Attr { return slog.String(KeyPlugin, name) }

func InterruptID(ids []uint32) slog.Attr { return slog.Any(KeyInterruptID, ids) }

func VersionNumber(v version.Number) slog.Attr { return slog.String(KeyVersionNumber, v.String()) }

func DataLost(lost bool) slog.Attr { return slog.Bool(KeyDataLost, lost) }

func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

func TransferCount(n int) slog.Attr { return slog.Int(KeyTransferCount, n) }

func MergedElements(n int) slog.Attr { return slog.Int(KeyMergedElements, n) }
