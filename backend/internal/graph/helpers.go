package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Record coercion helpers. Neo4j returns loosely typed values; these keep the
// hydration code readable.

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getFloat64FromRecord(record *neo4j.Record, key string) float64 {
	val, ok := record.Get(key)
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func getInt64FromRecord(record *neo4j.Record, key string) int64 {
	val, ok := record.Get(key)
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func getBoolFromRecord(record *neo4j.Record, key string) bool {
	val, ok := record.Get(key)
	if !ok {
		return false
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return false
}

func getTimeFromRecord(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok {
		return time.Time{}
	}
	if t, ok := val.(time.Time); ok {
		return t
	}
	return time.Time{}
}

func getStringFromMap(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getIntFromMap(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func getTimeFromMap(m map[string]any, key string) time.Time {
	if t, ok := m[key].(time.Time); ok {
		return t
	}
	return time.Time{}
}

// embeddingToParam converts a float32 embedding to the []float64 the driver
// expects for vector index parameters
func embeddingToParam(embedding []float32) []float64 {
	if embedding == nil {
		return nil
	}
	out := make([]float64, len(embedding))
	for i, v := range embedding {
		out[i] = float64(v)
	}
	return out
}

func embeddingFromValue(val any) []float32 {
	list, ok := val.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(list))
	for _, v := range list {
		if f, ok := v.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}

// mentionsFromValue hydrates entity mentions from a collected Cypher map list
func mentionsFromValue(val any) []EntityMention {
	list, ok := val.([]any)
	if !ok {
		return nil
	}
	var mentions []EntityMention
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := getStringFromMap(m, "id")
		if id == "" {
			continue
		}
		mentions = append(mentions, EntityMention{
			EntityID: id,
			Name:     getStringFromMap(m, "name"),
			Count:    getIntFromMap(m, "count"),
		})
	}
	return mentions
}

// provenanceFromValue hydrates provenance records from a collected map list
func provenanceFromValue(val any) []ProvenanceRecord {
	list, ok := val.([]any)
	if !ok {
		return nil
	}
	var records []ProvenanceRecord
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := getStringFromMap(m, "id")
		if id == "" {
			continue
		}
		records = append(records, ProvenanceRecord{
			ID:        id,
			Source:    getStringFromMap(m, "source"),
			Timestamp: getTimeFromMap(m, "ts"),
			Method:    getStringFromMap(m, "method"),
		})
	}
	return records
}
