package dist

import (
	"fmt"
	"strconv"
	"strings"

	"deploy.evalgo.org/common"
)

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NextVersion increments the last section, padded to two digits:
// 0.2.9 becomes 0.2.10, 0.2.1 becomes 0.2.02.
func NextVersion(current string) (string, error) {
	elems := strings.Split(current, ".")
	if len(elems) != 3 {
		return "", common.NewTaskError("Current version number should contain only three sections: %s", current)
	}
	for _, e := range elems {
		if !isDigits(e) {
			return "", common.NewTaskError("Current version number should only contain numbers: %s", current)
		}
	}
	patch, err := strconv.Atoi(elems[2])
	if err != nil {
		return "", common.NewTaskError("Current version number should only contain numbers: %s", current)
	}
	return fmt.Sprintf("%s.%s.%02d", elems[0], elems[1], patch+1), nil
}

// ValidateVersion checks version has three numeric sections.
func ValidateVersion(version string) error {
	elems := strings.Split(version, ".")
	for _, e := range elems {
		if !isDigits(e) {
			return common.NewTaskError("Not a valid version number: %s (should contain only digits)", version)
		}
	}
	if len(elems) != 3 {
		return common.NewTaskError("Not a valid version number: %s (should contain three elements)", version)
	}
	return nil
}

// PromptVersion asks for the version to release, offering the next
// version after the one in setup.yaml, and saves the answer to setup.yaml.
// An invalid or unconfirmed version is asked for again.
func PromptVersion(folder string, p common.Prompter) (string, error) {
	setup, err := ReadSetup(folder)
	if err != nil {
		return "", err
	}
	current := setup["version"]
	next, err := NextVersion(current)
	if err != nil {
		return "", err
	}
	var version string
	for {
		version, err = p.Prompt(fmt.Sprintf("Version number to release (previous %s)", current), next)
		if err != nil {
			return "", err
		}
		version = strings.TrimSpace(version)
		if err := ValidateVersion(version); err != nil {
			common.Logger.Warn(err.Error())
			continue
		}
		ok, err := common.Confirm(p, fmt.Sprintf("Please confirm you want to release version %s", version))
		if err != nil {
			return "", err
		}
		if ok {
			break
		}
		common.Logger.Warn("Please re-enter the version number")
	}
	setup["version"] = version
	if err := WriteSetupYAML(folder, setup); err != nil {
		return "", err
	}
	common.Logger.Infof("Release version: %s", version)
	return version, nil
}
