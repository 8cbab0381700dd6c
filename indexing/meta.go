package indexing

import "time"

// SetMeta stamps a newly-assigned id and version metadata onto doc, the way
// original_source/src/barn/insert.rs populates `meta.versionId`/
// `meta.lastUpdated` before indexing.
func SetMeta(doc map[string]any, id string, versionID int, now time.Time) {
	doc["id"] = id
	meta, _ := doc["meta"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["versionId"] = itoa(versionID)
	meta["lastUpdated"] = now.UTC().Format("2006-01-02T15:04:05.000Z")
	doc["meta"] = meta
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var b []byte
	for i > 0 {
		b = append([]byte{byte('0' + i%10)}, b...)
		i /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}
