package scopus

// RetrievalResponse is the top-level Author Retrieval API response.
type RetrievalResponse struct {
	Authors []AuthorRetrieval `json:"author-retrieval-response"`
}

// AuthorRetrieval is one author in the METRICS view. Scopus encodes
// numbers as strings.
type AuthorRetrieval struct {
	CoreData CoreData `json:"coredata"`
	HIndex   string   `json:"h-index"`
}

// CoreData holds the author identifiers and counters.
type CoreData struct {
	Identifier    string `json:"dc:identifier"` // "AUTHOR_ID:7004212771"
	DocumentCount string `json:"document-count"`
	CitedByCount  string `json:"cited-by-count"`
	CitationCount string `json:"citation-count"`
}
