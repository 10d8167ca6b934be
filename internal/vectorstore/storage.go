package vectorstore

import "shopassist/internal/domain"

// Storage persists catalog vectors and supports similarity search.
type Storage = domain.VectorStore
