// SVG wrapper: hex-encodes the payload inside a minimal SVG document, the
// fallback variant from spec section 4.2 for backends that won't tolerate
// the PNG wrapper's chunk structure. No library in the example pack owns
// "hex-encode bytes into an XML text node", so this is built directly on
// stdlib encoding/hex and text/template (see DESIGN.md).
package wrapper

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"text/template"

	"github.com/imgstash/imgstash/pkg/api"
	"github.com/imgstash/imgstash/pkg/apierr"
)

var svgTemplate = template.Must(template.New("svg").Parse(
	`<?xml version="1.0" encoding="UTF-8"?>` +
		`<svg xmlns="http://www.w3.org/2000/svg" width="1" height="1">` +
		`<desc data-length="{{.Length}}">{{.Hex}}</desc>` +
		`</svg>`,
))

const svgDescOpen = `<desc data-length="`
const svgDescHexOpen = `">`
const svgDescClose = `</desc>`

// SVG wraps/unwraps data as the hex-encoded content of a <desc> element.
type SVG struct{}

func (SVG) Kind() api.WrapperKind { return api.WrapperSVG }

func (SVG) Wrap(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	err := svgTemplate.Execute(&buf, struct {
		Length int
		Hex    string
	}{
		Length: len(data),
		Hex:    hex.EncodeToString(data),
	})
	if err != nil {
		return nil, fmt.Errorf("svg wrapper: executing template: %w", err)
	}
	return buf.Bytes(), nil
}

func (SVG) Unwrap(data []byte) ([]byte, error) {
	openIdx := bytes.Index(data, []byte(svgDescOpen))
	if openIdx < 0 {
		return nil, fmt.Errorf("%w: svg wrapper: missing <desc> element", apierr.ErrResourceCorrupt)
	}
	hexOpenIdx := bytes.Index(data[openIdx:], []byte(svgDescHexOpen))
	if hexOpenIdx < 0 {
		return nil, fmt.Errorf("%w: svg wrapper: malformed <desc> element", apierr.ErrResourceCorrupt)
	}
	lengthStart := openIdx + len(svgDescOpen)
	lengthEnd := openIdx + hexOpenIdx
	var declaredLength int
	if _, err := fmt.Sscanf(string(data[lengthStart:lengthEnd]), "%d", &declaredLength); err != nil {
		return nil, fmt.Errorf("%w: svg wrapper: invalid data-length: %v", apierr.ErrResourceCorrupt, err)
	}

	hexStart := openIdx + hexOpenIdx + len(svgDescHexOpen)
	closeIdx := bytes.Index(data[hexStart:], []byte(svgDescClose))
	if closeIdx < 0 {
		return nil, fmt.Errorf("%w: svg wrapper: unterminated <desc> element", apierr.ErrResourceCorrupt)
	}

	decoded, err := hex.DecodeString(string(data[hexStart : hexStart+closeIdx]))
	if err != nil {
		return nil, fmt.Errorf("%w: svg wrapper: invalid hex payload: %v", apierr.ErrResourceCorrupt, err)
	}
	if len(decoded) != declaredLength {
		return nil, fmt.Errorf("%w: svg wrapper: declared length %d does not match payload length %d",
			apierr.ErrResourceCorrupt, declaredLength, len(decoded))
	}
	return decoded, nil
}
