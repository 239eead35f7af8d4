package epub

import (
	"encoding/xml"
	"fmt"
)

type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest struct {
		Items []manifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type opfMetadata struct {
	Titles       []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creators     []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Languages    []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifiers  []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Publishers   []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Dates        []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ date"`
	Descriptions []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ description"`
	Metas        []opfMeta      `xml:"meta"`
}

// opfDCElement is a Dublin Core element. ePub 2 carries opf:file-as,
// opf:role and opf:scheme directly; ePub 3 moves them to <meta refines>.
type opfDCElement struct {
	Value  string `xml:",chardata"`
	ID     string `xml:"id,attr"`
	FileAs string `xml:"file-as,attr"`
	Role   string `xml:"role,attr"`
	Scheme string `xml:"scheme,attr"`
}

// opfMeta covers both <meta name content> (ePub 2) and
// <meta property refines>value</meta> (ePub 3).
type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"`
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
	Value    string `xml:",chardata"`
}

func parseOPF(data []byte) (*opfPackage, error) {
	data = stripBOM(numericEntities(data))

	var pkg opfPackage
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("epub: parse OPF: %w", err)
	}
	if pkg.Version == "" {
		pkg.Version = "2.0"
	}
	return &pkg, nil
}

func buildManifestMap(items []manifestItem) map[string]*manifestItem {
	byID := make(map[string]*manifestItem, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}
	return byID
}

// buildSpine resolves itemrefs against the manifest. Unresolvable itemrefs
// keep an empty Href.
func buildSpine(pkg *opfPackage, manifestByID map[string]*manifestItem) []spineItem {
	items := make([]spineItem, 0, len(pkg.Spine.ItemRefs))
	for _, ref := range pkg.Spine.ItemRefs {
		si := spineItem{
			IDRef:  ref.IDRef,
			Linear: ref.Linear != "no",
		}
		if mi, ok := manifestByID[ref.IDRef]; ok {
			si.ID = mi.ID
			si.Href = mi.Href
			si.MediaType = mi.MediaType
		}
		items = append(items, si)
	}
	return items
}
