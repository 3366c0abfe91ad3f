// Package rules is the static IOC layer: indicators loaded from a STIX 2.1 bundle are
// matched literally against log lines, independent of the anomaly detector.
package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
)

// IOC is an indicator value extracted from a STIX indicator pattern.
type IOC struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
	ID    string `json:"id,omitempty"`
}

// patternValue captures the first quoted comparison value in a STIX pattern,
// e.g. [ipv4-addr:value = '203.0.113.10'].
var patternValue = regexp.MustCompile(`value\s*=\s*'([^']+)'`)

type stixBundle struct {
	Type    string       `json:"type"`
	Objects []stixObject `json:"objects"`
}

type stixObject struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
}

// LoadBundle reads a STIX bundle file and returns its indicator IOCs.
func LoadBundle(path string) ([]IOC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()
	return ParseBundle(f)
}

// ParseBundle decodes a STIX bundle and returns one IOC per indicator whose pattern
// carries a quoted value. Other object types and value-less patterns are ignored.
func ParseBundle(r io.Reader) ([]IOC, error) {
	var b stixBundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	var iocs []IOC
	for _, obj := range b.Objects {
		if obj.Type != "indicator" {
			continue
		}
		m := patternValue.FindStringSubmatch(obj.Pattern)
		if m == nil {
			continue
		}
		iocs = append(iocs, IOC{Value: m[1], Name: obj.Name, ID: obj.ID})
	}
	return iocs, nil
}
