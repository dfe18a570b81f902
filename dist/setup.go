// Package dist packages a python app or project and uploads it to a
// package index.
package dist

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"deploy.evalgo.org/common"
)

// SetupYAMLName describes the package being released, e.g.
//
//	description: User Auth
//	name: user-auth
//	version: 0.2.0
const SetupYAMLName = "setup.yaml"

func setupYAMLPath(folder string) string {
	return filepath.Join(folder, SetupYAMLName)
}

// ReadSetup loads setup.yaml from folder. Values are kept as text.
func ReadSetup(folder string) (map[string]string, error) {
	file := setupYAMLPath(folder)
	data, err := os.ReadFile(file)
	if err != nil {
		sample, _ := yaml.Marshal(map[string]string{
			"description": "User Auth",
			"name":        "user-auth",
			"version":     "0.2.0",
		})
		return nil, common.NewTaskError(
			"File '%s' does not exist.  Please create in the following format:\n%s", SetupYAMLName, sample,
		)
	}
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, common.NewTaskError("Cannot parse %s: %v", file, err)
	}
	setup := make(map[string]string, len(raw))
	for k, v := range raw {
		if v != nil {
			setup[k] = fmt.Sprint(v)
		}
	}
	return setup, nil
}

// WriteSetupYAML saves setup back to folder.
func WriteSetupYAML(folder string, setup map[string]string) error {
	data, err := yaml.Marshal(setup)
	if err != nil {
		return err
	}
	return os.WriteFile(setupYAMLPath(folder), data, 0o644)
}

func setupValue(folder, key string) (string, error) {
	setup, err := ReadSetup(folder)
	if err != nil {
		return "", err
	}
	value, ok := setup[key]
	if !ok {
		return "", common.NewTaskError("Package '%s' not found in '%s'", key, SetupYAMLName)
	}
	return value, nil
}

// Description returns the package description from setup.yaml.
func Description(folder string) (string, error) {
	return setupValue(folder, "description")
}

// Name returns the package name from setup.yaml.
func Name(folder string) (string, error) {
	return setupValue(folder, "name")
}
