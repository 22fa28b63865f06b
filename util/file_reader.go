package util

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ParseJSONFile reads a file and parses it as JSON, using the provided object.
func ParseJSONFile(destination interface{}, path string) error {
	log.WithFields(log.Fields{
		"datatype": fmt.Sprintf("%T", destination),
		"path":     path,
	}).Trace("Parsing JSON file")

	dat, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %v: %w", path, err)
	}
	if err := json.Unmarshal(dat, destination); err != nil {
		return fmt.Errorf("failed to parse file %v: %w", path, err)
	}

	return nil
}

// ParseYAMLFile reads a file and parses it as YAML, using the provided object.
// Unknown fields are rejected.
func ParseYAMLFile(destination interface{}, path string) error {
	log.WithFields(log.Fields{
		"datatype": fmt.Sprintf("%T", destination),
		"path":     path,
	}).Trace("Parsing YAML file")

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read file %v: %w", path, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(destination); err != nil {
		return fmt.Errorf("failed to parse file %v: %w", path, err)
	}

	return nil
}
