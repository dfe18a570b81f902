package deploy

import (
	"context"
	"fmt"
	"path"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/executor"
)

// PackageName is the pip requirement for a version of a site,
// <prefix>-<safe name>==<version>.
func PackageName(prefix, siteName, version string) string {
	return fmt.Sprintf("%s-%s==%s", prefix, common.SafeName(siteName), version)
}

// PackageArchive is the file downloaded for PackageName.
func PackageArchive(prefix, siteName, version string) string {
	return fmt.Sprintf("%s-%s-%s.tar.gz", prefix, common.SafeName(siteName), version)
}

func run(ctx context.Context, e executor.Executor, line string) error {
	_, err := e.Run(ctx, executor.Command{Line: line})
	return err
}

// DownloadPackage fetches the project package from our package index.
func DownloadPackage(ctx context.Context, e executor.Executor, prefix, siteName, version, tempFolder string) error {
	name := PackageName(prefix, siteName, version)
	common.Logger.Infof("download package: %s", name)
	return run(ctx, e, fmt.Sprintf("pip install --download=%s --no-deps %s",
		executor.QuotePath(tempFolder), executor.Quote(name)))
}

// ExtractProjectPackage unpacks the downloaded package into the install
// folder, dropping the top level folder of the archive.
func ExtractProjectPackage(ctx context.Context, e executor.Executor, installFolder, tempFolder, prefix, siteName, version string) error {
	archive := PackageArchive(prefix, siteName, version)
	common.Logger.Infof("extract project package: %s", archive)
	return run(ctx, e, fmt.Sprintf("tar --strip-components=1 --directory=%s -xzf %s",
		executor.QuotePath(installFolder), executor.QuotePath(path.Join(tempFolder, archive))))
}

// InstallRequirements installs requirements/production.txt into the
// virtual environment.
func InstallRequirements(ctx context.Context, e executor.Executor, installFolder, venvFolder string) error {
	file := path.Join(installFolder, "requirements", "production.txt")
	common.Logger.Infof("requirements: %s", file)
	return run(ctx, e, fmt.Sprintf("%s install -r %s",
		executor.QuotePath(path.Join(venvFolder, "bin", "pip")), executor.QuotePath(file)))
}

// MkVirtualenv creates a python 2 or 3 virtual environment.
func MkVirtualenv(ctx context.Context, e executor.Executor, venvFolder string, pythonVersion int) error {
	common.Logger.Infof("mkvirtualenv: %s, python version %d", venvFolder, pythonVersion)
	var binary string
	switch pythonVersion {
	case 2:
	case 3:
		binary = "--python=/usr/bin/python3 "
	default:
		return common.NewTaskError("python version must be 2 or 3: %d", pythonVersion)
	}
	return run(ctx, e, "/usr/bin/virtualenv "+binary+executor.QuotePath(venvFolder))
}

// LinkInstallToLiveFolder points the live link at the install folder.
func LinkInstallToLiveFolder(ctx context.Context, e executor.Executor, installFolder, liveFolder string) error {
	common.Logger.Infof("link '%s' folder to '%s'", liveFolder, installFolder)
	exists, err := executor.Exists(ctx, e, liveFolder, false)
	if err != nil {
		return err
	}
	if exists {
		if err := run(ctx, e, "rm "+executor.QuotePath(liveFolder)); err != nil {
			return err
		}
	}
	return run(ctx, e, fmt.Sprintf("ln -s %s %s", executor.QuotePath(installFolder), executor.QuotePath(liveFolder)))
}

// TouchVassalIni makes uWSGI reload the vassal. The ini file must exist.
func TouchVassalIni(ctx context.Context, e executor.Executor, ini string) error {
	common.Logger.Infof("touch: %s", ini)
	exists, err := executor.Exists(ctx, e, ini, false)
	if err != nil {
		return err
	}
	if !exists {
		return common.NewTaskError("uwsgi ini file does not exist: %s", ini)
	}
	return run(ctx, e, "touch "+executor.QuotePath(ini))
}
