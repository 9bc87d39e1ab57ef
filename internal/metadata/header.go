package metadata

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Header tags read by Metadata.
const (
	TagDateObs = "DATE_OBS"
	TagDsunObs = "DSUN_OBS"
	TagDsun    = "DSUN"
	TagSolarR  = "SOLAR_R"
	TagNaxis1  = "NAXIS1"
	TagNaxis2  = "NAXIS2"
	TagCdelt1  = "CDELT1"
	TagCdelt2  = "CDELT2"
	TagCrpix1  = "CRPIX1"
	TagCrpix2  = "CRPIX2"
	TagCrval1  = "CRVAL1"
	TagCrval2  = "CRVAL2"
)

// Header is the immutable calibration metadata of one image, with an
// optional externally supplied observation time.
type Header struct {
	tags     map[string]string
	override time.Time
}

// NewHeader copies tags into a Header. Tag names are normalized to upper case
// with '-' replaced by '_', so FITS "DATE-OBS" and "DATE_OBS" are the same tag.
func NewHeader(tags map[string]string) Header {
	h := Header{tags: make(map[string]string, len(tags))}
	for k, v := range tags {
		h.tags[normalizeTag(k)] = strings.TrimSpace(v)
	}
	return h
}

// WithDate returns a copy of h whose Date is t regardless of DATE_OBS.
// A zero t clears the override.
func (h Header) WithDate(t time.Time) Header {
	h.override = t
	return h
}

// Override returns the externally supplied observation time, if any.
func (h Header) Override() (time.Time, bool) {
	return h.override, !h.override.IsZero()
}

// Lookup returns the raw value of tag.
func (h Header) Lookup(tag string) (string, bool) {
	v, ok := h.tags[normalizeTag(tag)]
	return v, ok
}

// Tags returns the sorted tag names present in the header.
func (h Header) Tags() []string {
	names := make([]string, 0, len(h.tags))
	for k := range h.tags {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of tags.
func (h Header) Len() int {
	return len(h.tags)
}

func normalizeTag(tag string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(tag), "-", "_"))
}

// ParseXMLHeader builds a Header from a JPEG 2000 XML box as served by
// getJP2Header: every leaf element with non-empty text becomes a tag. When
// a tag name repeats (e.g. in the <fits> and <helioviewer> sections) the
// first occurrence wins.
func ParseXMLHeader(r io.Reader) (Header, error) {
	dec := xml.NewDecoder(r)
	tags := make(map[string]string)

	var (
		stack []string
		text  strings.Builder
		leaf  bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Header{}, fmt.Errorf("parsing header XML: %w", err)
		}

		switch tok := tok.(type) {
		case xml.StartElement:
			stack = append(stack, tok.Name.Local)
			text.Reset()
			leaf = true
		case xml.CharData:
			if leaf {
				text.Write(tok)
			}
		case xml.EndElement:
			if len(stack) == 0 {
				return Header{}, fmt.Errorf("parsing header XML: unbalanced element %q", tok.Name.Local)
			}
			name := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if leaf {
				v := strings.TrimSpace(text.String())
				key := normalizeTag(name)
				if _, seen := tags[key]; !seen && v != "" {
					tags[key] = v
				}
			}
			leaf = false
			text.Reset()
		}
	}

	if len(tags) == 0 {
		return Header{}, errors.New("parsing header XML: no tags found")
	}
	return NewHeader(tags), nil
}
