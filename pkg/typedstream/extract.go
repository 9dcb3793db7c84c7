// Package typedstream pulls display text out of attributedBody blobs from
// the Messages archive. The blobs are NSKeyedArchive/typedstream payloads;
// rather than decode the full archive format, the extractor locates the
// length-prefixed UTF-8 string that follows an NSString class marker:
//
//	NSString ... 0x01 0x2B <length> <utf8 bytes>
//
// where <length> is one byte (0x01..0x7F), 0x81 plus one byte, or 0x84 plus
// four big-endian bytes. When the marker walk fails, a printable-run scan
// over the raw blob serves as a fallback.
package typedstream

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Status reports which stage of the marker walk settled the extraction.
type Status int

const (
	// StatusFound means displayable text was recovered.
	StatusFound Status = iota
	// StatusNoMarker means no NSString marker, or no 0x01 0x2B introducer
	// near one, exists in the blob.
	StatusNoMarker
	// StatusBadLength means the length prefix was missing, out of range,
	// or pointed past the end of the blob.
	StatusBadLength
	// StatusDecodeFailed means the length-prefixed bytes were not valid
	// UTF-8.
	StatusDecodeFailed
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNoMarker:
		return "no_marker"
	case StatusBadLength:
		return "bad_length"
	case StatusDecodeFailed:
		return "decode_failed"
	}
	return "unknown"
}

// Result carries the extracted text together with the stage outcome, so
// callers can count failure modes without treating them as errors.
type Result struct {
	Text   string
	Status Status
	// FromFallback is set when the printable-run scan produced the text
	// instead of the marker walk.
	FromFallback bool
}

const (
	// maxTextLength rejects length prefixes that cannot be real message
	// text, which keeps corrupted blobs from producing garbage slices.
	maxTextLength = 100_000
	// introducerWindow bounds how far past the class marker the
	// 0x01 0x2B introducer may sit.
	introducerWindow = 20
	// fallbackScanOffset skips the archive header where class names and
	// type codes would otherwise win the longest-run contest.
	fallbackScanOffset = 50
)

var (
	markerString  = []byte("NSString")
	markerMutable = []byte("NSMutableString")
)

// Extract recovers display text from an attributedBody blob. It never
// fails hard: a blob with no recoverable text yields a Result whose
// Status names the stage that gave up.
func Extract(blob []byte) Result {
	if len(blob) == 0 {
		return Result{Status: StatusNoMarker}
	}

	status := StatusNoMarker
	idx := bytes.Index(blob, markerString)
	markerLen := len(markerString)
	if idx < 0 {
		idx = bytes.Index(blob, markerMutable)
		markerLen = len(markerMutable)
	}
	if idx >= 0 {
		text, st := parseAfterMarker(blob, idx+markerLen)
		if st == StatusFound {
			return Result{Text: clean(text), Status: StatusFound}
		}
		status = st
	}

	if text := scanPrintableRun(blob); text != "" {
		return Result{Text: clean(text), Status: StatusFound, FromFallback: true}
	}
	return Result{Status: status}
}

// Text is a convenience wrapper returning the extracted text, or "" when
// nothing was recovered.
func Text(blob []byte) string {
	return Extract(blob).Text
}

// parseAfterMarker looks for the 0x01 0x2B introducer within the window
// after the class marker and reads the length-prefixed string behind it.
func parseAfterMarker(blob []byte, start int) (string, Status) {
	end := start + introducerWindow
	if max := len(blob) - 2; end > max {
		end = max
	}
	for pos := start; pos < end; pos++ {
		if blob[pos] == 0x01 && blob[pos+1] == 0x2b {
			return readLengthPrefixed(blob, pos+2)
		}
	}
	return "", StatusNoMarker
}

func readLengthPrefixed(blob []byte, pos int) (string, Status) {
	if pos >= len(blob) {
		return "", StatusBadLength
	}
	var length, start int
	switch b := blob[pos]; {
	case b >= 0x01 && b <= 0x7f:
		length = int(b)
		start = pos + 1
	case b == 0x81 && pos+1 < len(blob):
		length = int(blob[pos+1])
		start = pos + 2
	case b == 0x84 && pos+4 < len(blob):
		length = int(binary.BigEndian.Uint32(blob[pos+1 : pos+5]))
		start = pos + 5
	default:
		return "", StatusBadLength
	}
	if length <= 0 || length > maxTextLength {
		return "", StatusBadLength
	}
	if start+length > len(blob) {
		return "", StatusBadLength
	}
	raw := blob[start : start+length]
	if !utf8.Valid(raw) {
		return "", StatusDecodeFailed
	}
	return string(raw), StatusFound
}

// scanPrintableRun walks the blob past the archive header and keeps the
// longest run of printable bytes that still reads like message text.
func scanPrintableRun(blob []byte) string {
	best := ""
	i := fallbackScanOffset
	for i < len(blob) {
		runStart := i
		for i < len(blob) {
			b := blob[i]
			if (b >= 32 && b < 127) || b == '\n' || b == '\r' || b == '\t' || b >= 0xc0 {
				i++
				continue
			}
			break
		}
		if i > runStart {
			chunk := strings.TrimSpace(decodeLoose(blob[runStart:i]))
			if len(chunk) > len(best) && looksLikeText(chunk) {
				best = chunk
			}
		}
		i++
	}
	return best
}

// decodeLoose decodes UTF-8 dropping invalid bytes, the lossy counterpart
// of the strict decode used on the marker path.
func decodeLoose(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			b = b[1:]
			continue
		}
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}

// looksLikeText requires more than half the runes to be printable before a
// fallback run is believed to be message text.
func looksLikeText(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	printable, total := 0, 0
	for _, r := range s {
		total++
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	return float64(printable)/float64(total) > 0.5
}

// clean strips the object-replacement placeholder and stray control bytes
// that leak out of the archive encoding, then trims surrounding space.
// Invalid sequences surface as U+FFFD rather than breaking JSON encoding.
func clean(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r == '￼' || r == 0x00 || r == 0x01 {
			continue
		}
		sb.WriteRune(r)
	}
	return strings.TrimSpace(sb.String())
}
