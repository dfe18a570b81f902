package dist

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/executor"
	"deploy.evalgo.org/scm"
)

// CheckIsProjectOrApp requires a 'project' or an 'example' folder.
func CheckIsProjectOrApp(folder string) error {
	for _, name := range []string{"project", "example"} {
		if stat, err := os.Stat(filepath.Join(folder, name)); err == nil && stat.IsDir() {
			return nil
		}
	}
	return common.Abort("Not a project or app (need a 'project' or 'example' folder)")
}

// CheckScmStatus allows setup.py to be the only uncommitted file.
func CheckScmStatus(status []string) error {
	for _, name := range status {
		if name != "setup.py" {
			return common.Abort("The following files have not been committed: %v", status)
		}
	}
	return nil
}

// Requirement is a pinned dependency of a project.
type Requirement struct {
	Name    string
	Version string
}

// ReadRequirements parses requirements-<prefix>.txt in folder. Every line
// must be 'name==version'. A missing file has no requirements.
func ReadRequirements(folder, prefix string) ([]Requirement, error) {
	file := filepath.Join(folder, fmt.Sprintf("requirements-%s.txt", prefix))
	f, err := os.Open(file)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var result []Requirement
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, version, ok := strings.Cut(line, "==")
		if !ok || name == "" || version == "" {
			return nil, common.NewTaskError("Dependency in '%s' does not have a name and version number: %s", file, line)
		}
		result = append(result, Requirement{Name: name, Version: version})
	}
	return result, scanner.Err()
}

// CheckRequirements shows the pinned app versions of a project and asks
// the user to confirm them. Apps are not checked.
func CheckRequirements(folder string, isProject bool, prefix string, p common.Prompter) error {
	if !isProject {
		return nil
	}
	requirements, err := ReadRequirements(folder, prefix)
	if err != nil || len(requirements) == 0 {
		return err
	}
	common.Logger.Info("Please check the app version numbers for this project:")
	for _, r := range requirements {
		common.Logger.Infof("%-30s %-10s", r.Name, r.Version)
	}
	ok, err := common.Confirm(p, "Are these the correct dependencies and versions")
	if err != nil {
		return err
	}
	if !ok {
		return common.Abort("Please check and correct the dependencies and their versions...")
	}
	return nil
}

// ArchiveName finds the archive created by 'setup.py sdist' from its output.
func ArchiveName(folder, sdistOutput string) (string, error) {
	name := ""
	for _, line := range strings.Split(sdistOutput, "\n") {
		if strings.HasPrefix(line, "creating") {
			name = strings.TrimSpace(strings.TrimPrefix(line, "creating"))
			break
		}
	}
	if name == "" {
		return "", common.NewTaskError("Cannot find archive name in output of 'sdist' command")
	}
	result := filepath.Join(folder, "dist", name+".tar.gz")
	stat, err := os.Stat(result)
	if err != nil {
		return "", common.NewTaskError("Cannot find archive name in the 'dist' folder: %s", result)
	}
	if !stat.Mode().IsRegular() {
		return "", common.NewTaskError("Archive %s is not a file.", result)
	}
	return result, nil
}

// ReleaseOptions control a release.
type ReleaseOptions struct {
	// Folder is the root of the app or project
	Folder string
	// Prefix is the company prefix of the package name e.g. 'pkimber'
	Prefix string
	// PyPIRC names the index in ~/.pypirc
	PyPIRC string
	// Testing skips the version control checks, the tag and the upload
	Testing bool

	Exec     executor.Executor
	Prompter common.Prompter
}

// Release writes setup.py and MANIFEST.in for the next version, commits
// and tags it, then uploads the package to the index.
func Release(ctx context.Context, opts ReleaseOptions) (string, error) {
	log := common.NewContextLogger(common.Logger, map[string]interface{}{"folder": opts.Folder})
	log.Info("release")
	if err := CheckIsProjectOrApp(opts.Folder); err != nil {
		return "", err
	}
	repo, err := scm.New(ctx, opts.Exec, opts.Folder)
	if err != nil {
		return "", err
	}
	cfg, err := repo.Config(ctx)
	if err != nil {
		return "", err
	}
	if !opts.Testing {
		status, err := repo.Status(ctx)
		if err != nil {
			return "", err
		}
		if err := CheckScmStatus(status); err != nil {
			return "", err
		}
	}
	description, err := Description(opts.Folder)
	if err != nil {
		return "", err
	}
	packages, err := Packages(opts.Folder)
	if err != nil {
		return "", err
	}
	packageData, err := PackageData(opts.Folder, packages)
	if err != nil {
		return "", err
	}
	isProject := HasProjectPackage(packages)
	name, err := Name(opts.Folder)
	if err != nil {
		return "", err
	}
	if err := CheckRequirements(opts.Folder, isProject, opts.Prefix, opts.Prompter); err != nil {
		return "", err
	}
	version, err := PromptVersion(opts.Folder, opts.Prompter)
	if err != nil {
		return "", err
	}
	if err := WriteManifestIn(opts.Folder, isProject, packages); err != nil {
		return "", err
	}
	err = WriteSetup(opts.Folder, Setup{
		Name:        name,
		Prefix:      opts.Prefix,
		Packages:    packages,
		PackageData: packageData,
		Version:     version,
		Description: description,
		Author:      cfg.Author,
		Email:       cfg.Email,
		URL:         cfg.URL,
	})
	if err != nil {
		return "", err
	}
	if opts.Testing {
		return version, nil
	}
	if err := repo.CommitAndTag(ctx, version); err != nil {
		return "", err
	}
	line := "python setup.py clean sdist upload -r " + executor.Quote(opts.PyPIRC)
	log.Info(line)
	if _, err := opts.Exec.Run(ctx, executor.Command{Line: line, Dir: opts.Folder}); err != nil {
		return "", err
	}
	return version, nil
}
