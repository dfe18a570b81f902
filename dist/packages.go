package dist

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var skipFolders = map[string]bool{".hg": true, ".git": true, "dist": true, "example": true, "templates": true}

// Packages returns the dotted names of the folders holding an __init__.py.
// 'app' and 'example' are moved to the front.
func Packages(folder string) ([]string, error) {
	var packages []string
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != folder && skipFolders[d.Name()] {
			return filepath.SkipDir
		}
		if _, err := os.Stat(filepath.Join(path, "__init__.py")); err != nil {
			return nil
		}
		rel, err := filepath.Rel(folder, path)
		if err != nil || rel == "." {
			return err
		}
		packages = append(packages, strings.ReplaceAll(rel, string(filepath.Separator), "."))
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"app", "example"} {
		for i, p := range packages {
			if p == name {
				packages = append([]string{name}, append(packages[:i:i], packages[i+1:]...)...)
				break
			}
		}
	}
	return packages, nil
}

// HasProjectPackage reports whether this is a project rather than an app.
func HasProjectPackage(packages []string) bool {
	for _, p := range packages {
		if p == "project" {
			return true
		}
	}
	return false
}

// PackageData lists, per top level package, the static and templates
// folders (and their sub folders) relative to the package.
func PackageData(folder string, packages []string) (map[string][]string, error) {
	result := map[string][]string{}
	for _, p := range packages {
		if stat, err := os.Stat(filepath.Join(folder, p)); err != nil || !stat.IsDir() {
			continue
		}
		for _, name := range []string{"static", "templates"} {
			root := filepath.Join(folder, p, name)
			if stat, err := os.Stat(root); err != nil || !stat.IsDir() {
				continue
			}
			err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil || !d.IsDir() {
					return err
				}
				rel, err := filepath.Rel(filepath.Join(folder, p), path)
				if err != nil {
					return err
				}
				result[p] = append(result[p], filepath.ToSlash(rel))
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	for p := range result {
		sort.Strings(result[p])
	}
	return result, nil
}
