package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/da"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping maps tool documents. Names are analyzed without stemming
// so prefix and fuzzy queries see the words as typed; descriptions use the
// Danish analyzer.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = standard.Name

	docMapping := bleve.NewDocumentMapping()

	name := bleve.NewTextFieldMapping()
	name.Analyzer = standard.Name
	name.Store = true
	name.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("name", name)

	description := bleve.NewTextFieldMapping()
	description.Analyzer = da.AnalyzerName
	description.Store = false
	description.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("description", description)

	for _, field := range []string{"id", "category", "owner_id"} {
		kw := bleve.NewTextFieldMapping()
		kw.Analyzer = keyword.Name
		kw.Store = true
		docMapping.AddFieldMappingsAt(field, kw)
	}

	onHold := bleve.NewBooleanFieldMapping()
	onHold.Store = true
	docMapping.AddFieldMappingsAt("on_hold", onHold)

	price := bleve.NewNumericFieldMapping()
	price.Store = true
	docMapping.AddFieldMappingsAt("price_per_day", price)

	created := bleve.NewNumericFieldMapping()
	created.Store = true
	docMapping.AddFieldMappingsAt("created_at", created)

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}
