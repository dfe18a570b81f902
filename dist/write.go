package dist

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"deploy.evalgo.org/common"
)

// WriteManifestIn writes MANIFEST.in, including the static and templates
// folders of the top level packages when they exist.
func WriteManifestIn(folder string, isProject bool, packages []string) error {
	folders := []string{"doc_src", "docs"}
	for _, p := range packages {
		if !strings.Contains(p, ".") {
			folders = append(folders, path.Join(p, "static"), path.Join(p, "templates"))
		}
	}
	var content []string
	for _, f := range folders {
		if stat, err := os.Stat(filepath.Join(folder, f)); err == nil && stat.IsDir() {
			content = append(content, "recursive-include "+f+" *")
		}
	}
	content = append(content, "", "include LICENSE")
	if isProject {
		content = append(content, "include manage.py")
	}
	content = append(content,
		"include README",
		"include requirements/*.txt",
		"include *.txt",
		"",
		"prune example/",
	)
	return os.WriteFile(filepath.Join(folder, "MANIFEST.in"), []byte(strings.Join(content, "\n")), 0o644)
}

// Setup holds the values written to setup.py.
type Setup struct {
	Name        string
	Prefix      string
	Packages    []string
	PackageData map[string][]string
	Version     string
	Description string
	Author      string
	Email       string
	URL         string
}

// PackageName is prefixed so pip does not confuse it with a package on PyPI.
func (s Setup) PackageName() string {
	return s.Prefix + "-" + common.SafeName(s.Name)
}

func (s Setup) PackageList() string {
	quoted := make([]string, len(s.Packages))
	for i, p := range s.Packages {
		quoted[i] = "'" + p + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// PackageDataBlock renders the package_data argument, empty when there is
// no package data.
func (s Setup) PackageDataBlock() string {
	if len(s.PackageData) == 0 {
		return ""
	}
	names := make([]string, 0, len(s.PackageData))
	for p := range s.PackageData {
		names = append(names, p)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("\n    package_data={")
	for _, p := range names {
		folders := append([]string(nil), s.PackageData[p]...)
		sort.Strings(folders)
		b.WriteString("\n        '" + p + "': [\n")
		for _, f := range folders {
			b.WriteString("            '" + path.Join(f, "*.*") + "',\n")
		}
		b.WriteString("        ],\n")
	}
	b.WriteString("    },")
	return b.String()
}

var setupTemplate = template.Must(template.New("setup.py").Parse(`import os
from distutils.core import setup


def read_file_into_string(filename):
    path = os.path.abspath(os.path.dirname(__file__))
    filepath = os.path.join(path, filename)
    try:
        return open(filepath).read()
    except IOError:
        return ''


def get_readme():
    for name in ('README', 'README.rst', 'README.md'):
        if os.path.exists(name):
            return read_file_into_string(name)
    return ''


setup(
    name='{{.PackageName}}',
    packages={{.PackageList}},{{.PackageDataBlock}}
    version='{{.Version}}',
    description='{{.Description}}',
    author='{{.Author}}',
    author_email='{{.Email}}',
    url='{{.URL}}',
    classifiers=[
        'Development Status :: 1 - Planning',
        'Environment :: Console',
        'Intended Audience :: Developers',
        'License :: OSI Approved :: Apache Software License',
        'Natural Language :: English',
        'Operating System :: OS Independent',
        'Programming Language :: Python',
        'Topic :: Office/Business :: Scheduling',
    ],
    long_description=get_readme(),
)`))

// WriteSetup writes setup.py into folder.
func WriteSetup(folder string, s Setup) error {
	f, err := os.Create(filepath.Join(folder, "setup.py"))
	if err != nil {
		return err
	}
	defer f.Close()
	return setupTemplate.Execute(f, s)
}
