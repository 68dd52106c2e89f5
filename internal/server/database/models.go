package database

import "time"

// ConversionType identifies which conversion produced a record.
type ConversionType string

const (
	TypePDFMerge     ConversionType = "PDF_MERGE"
	TypeImageToPDF   ConversionType = "IMAGE_TO_PDF"
	TypePDFToImage   ConversionType = "PDF_TO_IMAGE"
	TypeImageConvert ConversionType = "IMAGE_CONVERT"
)

// Conversion is a persisted conversion history record. Field order
// matches conversionColumns.
type Conversion struct {
	ID               int64
	Filename         string
	OriginalFilename string
	Filesize         int64
	ConversionType   ConversionType
	OutputPath       string
	CreatedAt        time.Time
	UserID           *int64 // nil when no owner was given
	Metadata         map[string]any
}

// User owns conversions. Only the seed command creates users.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
}

// PendingDeletion is a staged upload scheduled for removal.
type PendingDeletion struct {
	ID          int64
	Path        string
	DeleteAfter time.Time
}

// ListFilter narrows a history listing.
type ListFilter struct {
	UserID *int64
	Limit  int
}

// Stats holds aggregate conversion statistics.
type Stats struct {
	TotalConversions int64
	ByType           map[ConversionType]int64
	StorageUsed      int64
}
