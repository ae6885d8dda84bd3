package entity

type Collection string

const (
	CollectionCardano      Collection = "cardano_knowledge"
	CollectionCardanoFAQ   Collection = "cardano_faq"
	CollectionCivilLaw     Collection = "civil_law"
	CollectionCorporateLaw Collection = "corporate_law"
	CollectionPropertyLaw  Collection = "property_law"
)

func Collections() []Collection {
	return []Collection{
		CollectionCardano,
		CollectionCardanoFAQ,
		CollectionCivilLaw,
		CollectionCorporateLaw,
		CollectionPropertyLaw,
	}
}

func (c Collection) Valid() bool {
	for _, known := range Collections() {
		if c == known {
			return true
		}
	}
	return false
}

// SetupName is the route segment used by the training endpoints,
// e.g. setup_cardano_vector_db.
func (c Collection) SetupName() string {
	switch c {
	case CollectionCardano:
		return "cardano"
	case CollectionCardanoFAQ:
		return "cardano_faq"
	}
	return string(c)
}

func CollectionForDomain(d LegalDomain) Collection {
	return Collection(d)
}

// Passage is one retrieved knowledge base chunk.
type Passage struct {
	Content string
	Source  string
	Score   float32
}

// Document is a chunk ready to be indexed.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
}

type IngestReport struct {
	Collection Collection
	Files      int
	Chunks     int
}

// SourceText is the plain text of one knowledge source file.
type SourceText struct {
	Name string
	Text string
}

// Metadata keys stored with every indexed chunk.
const (
	MetaSource     = "source"
	MetaCollection = "collection"
	MetaChunk      = "chunk"
	MetaChunkID    = "chunk_id"
)
