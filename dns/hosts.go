package dns

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Dotted quad squashed into a name by a broken export, with whatever follows it.
var squashedIPPattern = regexp.MustCompile(`\d{1,3}(\.\d{1,3}){3}.*`)

// HostsEntry - One hosts list line.
type HostsEntry struct {
	IP    string
	Names []string
}

// Record - An A record to add.
type Record struct {
	Zone  string
	Label string // "@" for the zone apex
	IP    string
	Name  string // Name as it was listed
}

// ParseHostsList - Parse "<ip> <name> [<name>...]" lines. Blank, comment and short lines are skipped.
func ParseHostsList(reader io.Reader) ([]HostsEntry, error) {
	var entries []HostsEntry
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		entries = append(entries, HostsEntry{IP: fields[0], Names: fields[1:]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ParseHostsFile - Parse a hosts list file.
func ParseHostsFile(path string) ([]HostsEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hosts list: %w", err)
	}
	defer file.Close()
	return ParseHostsList(file)
}

// SplitDomain - Find the zone a name belongs to and its label within it.
// The longest matching zone wins. Names that are in no zone or have no usable label give false.
func SplitDomain(name string, zones []string) (string, string, bool) {
	name = strings.TrimSuffix(strings.ToLower(name), ".")
	sorted := append([]string(nil), zones...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})
	for _, zone := range sorted {
		zone = strings.TrimSuffix(strings.ToLower(zone), ".")
		if name == zone {
			return zone, "@", true
		}
		if !strings.HasSuffix(name, "."+zone) {
			continue
		}
		label := strings.TrimSuffix(name, "."+zone)
		label = strings.Trim(squashedIPPattern.ReplaceAllString(label, ""), ". ")
		if label == "" {
			return zone, "", false
		}
		return zone, label, true
	}
	return "", "", false
}

// PlanRecords - Records for every listed name that belongs to one of the zones, in list order.
// The second result holds the names that were left out.
func PlanRecords(entries []HostsEntry, zones []string) ([]Record, []string) {
	var records []Record
	var skipped []string
	for _, entry := range entries {
		for _, name := range entry.Names {
			zone, label, ok := SplitDomain(name, zones)
			if !ok {
				skipped = append(skipped, name)
				continue
			}
			records = append(records, Record{Zone: zone, Label: label, IP: entry.IP, Name: name})
		}
	}
	return records, skipped
}
