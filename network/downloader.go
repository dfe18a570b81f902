package network

import (
	"github.com/dustin/go-humanize"

	"deploy.evalgo.org/common"
)

// WriteCounter counts bytes passing through a copy.
type WriteCounter struct {
	Total uint64
}

func (wc *WriteCounter) Write(p []byte) (int, error) {
	n := len(p)
	wc.Total += uint64(n)
	return n, nil
}

// String returns the total in human readable form.
func (wc *WriteCounter) String() string {
	return humanize.Bytes(wc.Total)
}

// Done logs the size of a finished download.
func (wc *WriteCounter) Done(path string) {
	common.Logger.WithField("size", wc.String()).Infof("downloaded %s", path)
}
