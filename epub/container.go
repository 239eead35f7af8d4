package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"
)

// containerPath is the well-known location of container.xml in an ePub archive.
const containerPath = "META-INF/container.xml"

const opfMediaType = "application/oebps-package+xml"

type containerXML struct {
	XMLName   xml.Name `xml:"container"`
	RootFiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

// parseContainer returns the OPF path named by container.xml. The first
// rootfile with the OPF media type wins; failing that, the first rootfile
// with a path. Archives without container.xml fall back to the first .opf
// entry.
func parseContainer(zr *zip.Reader) (string, error) {
	f := findFileInsensitive(zr, containerPath)
	if f == nil {
		for _, f := range zr.File {
			if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
				return f.Name, nil
			}
		}
		return "", fmt.Errorf("epub: no OPF file found in archive: %w", ErrInvalidEPub)
	}

	data, err := readZipFile(f)
	if err != nil {
		return "", fmt.Errorf("epub: read container.xml: %w", err)
	}
	var c containerXML
	if err := xml.Unmarshal(stripBOM(data), &c); err != nil {
		return "", fmt.Errorf("epub: parse container.xml: %w", err)
	}

	var fallback string
	for _, rf := range c.RootFiles {
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), opfMediaType) {
			return fullPath, nil
		}
		if fallback == "" {
			fallback = fullPath
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("epub: container.xml names no rootfile: %w", ErrInvalidEPub)
	}
	return fallback, nil
}
