// Package emvdata assembles the ARQC input data block from BER-TLV encoded
// chip data.
package emvdata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

var (
	ErrTagNotFound = errors.New("emvdata: tag not found")
	ErrNoTags      = errors.New("emvdata: no tags requested")
)

// DefaultTags is the usual CDOL1 order for ARQC generation: amount
// authorised, amount other, terminal country code, TVR, transaction
// currency code, transaction date, transaction type, unpredictable number,
// AIP, ATC and the issuer application data.
var DefaultTags = []string{
	"9F02", "9F03", "9F1A", "95", "5F2A", "9A", "9C", "9F37", "82", "9F36", "9F10",
}

// Flatten decodes data and returns every primitive TLV in document order,
// descending into constructed templates such as 77 or 70.
func Flatten(data []byte) ([]bertlv.TLV, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("bertlv decode failed: %w", err)
	}

	var out []bertlv.TLV
	var walk func([]bertlv.TLV)
	walk = func(list []bertlv.TLV) {
		for _, p := range list {
			if len(p.TLVs) > 0 {
				walk(p.TLVs)

				continue
			}
			out = append(out, p)
		}
	}
	walk(packets)

	return out, nil
}

// DataBlock concatenates the values of tags in the order given. The first
// occurrence of each tag wins. Missing tags are an error.
func DataBlock(data []byte, tags []string) ([]byte, error) {
	if len(tags) == 0 {
		return nil, ErrNoTags
	}
	flat, err := Flatten(data)
	if err != nil {
		return nil, err
	}

	values := make(map[string][]byte, len(flat))
	for _, p := range flat {
		tag := strings.ToUpper(p.Tag)
		if _, seen := values[tag]; !seen {
			values[tag] = p.Value
		}
	}

	var block []byte
	for _, tag := range tags {
		v, ok := values[strings.ToUpper(strings.TrimSpace(tag))]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTagNotFound, tag)
		}
		block = append(block, v...)
	}

	return block, nil
}

// ParseTags splits a comma separated tag list such as "9F02,9F03,95".
func ParseTags(list string) []string {
	var tags []string
	for _, t := range strings.Split(list, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, strings.ToUpper(t))
		}
	}

	return tags
}
