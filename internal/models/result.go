package models

// NoResultsMessage is reported when a retrieval finds nothing relevant.
const NoResultsMessage = "no relevant information found"

// RetrievalResult is a single ranked passage.
type RetrievalResult struct {
	Rank       int     `json:"rank"`
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Relevance  float64 `json:"relevance"` // cosine similarity, higher is more relevant
	ChunkIndex int     `json:"chunk_index"`
}

// RetrievalResponse is the response for a retrieval request.
// NoResults is set (with Message) when the query matched nothing; this is not an error.
type RetrievalResponse struct {
	Query     string             `json:"query"`
	Results   []*RetrievalResult `json:"results"`
	NoResults bool               `json:"no_results,omitempty"`
	Message   string             `json:"message,omitempty"`
	QueryTime int64              `json:"query_time_ms"`
}
