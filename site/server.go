package site

import (
	"strings"

	"gopkg.in/yaml.v3"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/pillar"
)

// FindServerName returns the server hosting siteName. Wildcard patterns in
// top.sls are skipped, and only servers whose testing flag equals testing
// are considered, because test sites appear in the pillar twice: once on
// the live server and once on the testing server.
//
// Only the 'sites' key of each server is read; the full validation runs
// when the Info for the chosen server is built, so a misconfigured server
// elsewhere in the pillar does not stop the lookup.
func FindServerName(folder, siteName string, testing bool) (string, error) {
	servers, err := pillar.Servers(folder)
	if err != nil {
		return "", err
	}
	log := common.Logger.WithFields(map[string]interface{}{"site": siteName, "testing": testing})
	result := ""
	for _, server := range servers {
		if strings.ContainsAny(server, "*?[,") {
			continue
		}
		p, err := pillar.Load(folder, server)
		if err != nil {
			log.WithError(err).Warnf("skipping server %s", server)
			continue
		}
		var sites map[string]yaml.Node
		found, err := p.Decode("sites", &sites)
		if err != nil {
			log.WithError(err).Warnf("skipping server %s", server)
			continue
		}
		if !found {
			continue
		}
		if _, ok := sites[siteName]; !ok {
			continue
		}
		if p.Has("testing") != testing {
			continue
		}
		if result != "" {
			return "", common.NewTaskError(
				"found site '%s' on more than one server in the pillar: '%s' and '%s'",
				siteName, result, server,
			)
		}
		result = server
	}
	if result == "" {
		return "", common.NewSiteNotFoundError("cannot find '%s' in pillar '%s'", siteName, folder)
	}
	log.Debugf("server name: %s", result)
	return result, nil
}
