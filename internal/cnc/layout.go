package cnc

// Layout maps byte offsets inside the CnC file to its five sub-regions.
// It is a pure descriptor: nothing here touches the filesystem or a
// mapping, it only computes where each region starts and ends given the
// lengths published in MetaData. Counters-values sub-region sizing and
// cache-line alignment mirror how the driver lays out per-counter
// 64-bit slots; this client never writes that region, only reads it.
type Layout struct {
	MetaDataOffset            int64
	MetaDataLength             int64
	ToDriverBufferOffset       int64
	ToDriverBufferLength       int64
	ToClientBufferOffset       int64
	ToClientBufferLength       int64
	CountersMetadataOffset     int64
	CountersMetadataLength     int64
	CountersValuesOffset       int64
	CountersValuesLength       int64
	ErrorLogOffset             int64
	ErrorLogLength             int64
	TotalLength                int64
}

// ComputeLayout lays out the five sub-regions back to back, starting
// immediately after the fixed-size metadata header. Each region's
// length is whatever MetaData currently reports; callers must only call
// this after the version field has been observed non-zero, since a
// driver that has not finished initializing may report zero lengths.
func ComputeLayout(meta *MetaData) Layout {
	l := Layout{
		MetaDataOffset: 0,
		MetaDataLength: metaDataLength,
	}
	offset := l.MetaDataOffset + l.MetaDataLength

	l.ToDriverBufferOffset = offset
	l.ToDriverBufferLength = int64(meta.ToDriverBufferLength())
	offset += l.ToDriverBufferLength

	l.ToClientBufferOffset = offset
	l.ToClientBufferLength = int64(meta.ToClientBufferLength())
	offset += l.ToClientBufferLength

	l.CountersMetadataOffset = offset
	l.CountersMetadataLength = int64(meta.CountersMetadataBufferLength())
	offset += l.CountersMetadataLength

	l.CountersValuesOffset = offset
	l.CountersValuesLength = int64(meta.CountersValuesBufferLength())
	offset += l.CountersValuesLength

	l.ErrorLogOffset = offset
	l.ErrorLogLength = int64(meta.ErrorLogBufferLength())
	offset += l.ErrorLogLength

	l.TotalLength = offset
	return l
}
