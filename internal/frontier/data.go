package frontier

// Crawl state & ordering

type SourceContext string

const (
	SourceSeed  = "Seed"
	SourceCrawl = "Crawl"
)

// Candidate represents a URL that has already been admitted by the
// scheduler.
//
// Invariants:
// - Dedup, depth and page caps have been enforced before enqueue
// - Frontier MUST treat this as an admitted URL
// - Frontier MUST NOT re-evaluate admission semantics
type Candidate struct {
	pageURL       string // Frontier MUST assume this URL is already admitted.
	depth         int
	sourceContext SourceContext
}

func NewCandidate(pageURL string, depth int, sourceContext SourceContext) Candidate {
	return Candidate{
		pageURL:       pageURL,
		depth:         depth,
		sourceContext: sourceContext,
	}
}

func (c Candidate) URL() string {
	return c.pageURL
}

func (c Candidate) Depth() int {
	return c.depth
}

func (c Candidate) Source() SourceContext {
	return c.sourceContext
}
