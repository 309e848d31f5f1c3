package mailboxer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/full-stack-biz/mailboxer/store"
)

// MessageLimits holds all delivery validation limits.
// Used to pass limits to validation functions.
type MessageLimits struct {
	MaxSubjectLength   int
	MaxBodySize        int
	MaxAttachmentSize  int64
	MaxAttachmentCount int
	MaxRecipientCount  int
}

// MinSubjectLength is the minimum subject length (non-empty after trimming).
const MinSubjectLength = 1

// DefaultLimits returns the default delivery limits.
func DefaultLimits() MessageLimits {
	return MessageLimits{
		MaxSubjectLength:   DefaultMaxSubjectLength,
		MaxBodySize:        DefaultMaxBodySize,
		MaxAttachmentSize:  DefaultMaxAttachmentSize,
		MaxAttachmentCount: DefaultMaxAttachmentCount,
		MaxRecipientCount:  DefaultMaxRecipientCount,
	}
}

// ValidateSubject validates a conversation subject using default limits.
// For configurable limits, use ValidateSubjectWithLimits.
func ValidateSubject(subject string) error {
	return ValidateSubjectWithLimits(subject, DefaultLimits())
}

// ValidateSubjectWithLimits validates a conversation subject against configurable limits.
func ValidateSubjectWithLimits(subject string, limits MessageLimits) error {
	// Trim whitespace for validation
	trimmed := strings.TrimSpace(subject)
	if len(trimmed) < MinSubjectLength {
		return &ValidationError{Field: "subject", Message: "subject is required", Err: ErrEmptySubject}
	}

	if len(subject) > limits.MaxSubjectLength {
		return &ValidationError{
			Field:   "subject",
			Message: fmt.Sprintf("subject length %d exceeds max %d", len(subject), limits.MaxSubjectLength),
			Err:     ErrSubjectTooLong,
		}
	}

	// Check for valid UTF-8 and no control characters (except newline/tab)
	if !utf8.ValidString(subject) {
		return &ValidationError{Field: "subject", Message: "subject contains invalid UTF-8", Err: ErrInvalidContent}
	}

	for _, r := range subject {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return &ValidationError{
				Field:   "subject",
				Message: fmt.Sprintf("subject contains control character U+%04X", r),
				Err:     ErrInvalidContent,
			}
		}
	}

	return nil
}

// ValidateBody validates a message body using default limits.
// For configurable limits, use ValidateBodyWithLimits.
func ValidateBody(body string) error {
	return ValidateBodyWithLimits(body, DefaultLimits())
}

// ValidateBodyWithLimits validates a message body against configurable limits.
func ValidateBodyWithLimits(body string, limits MessageLimits) error {
	if strings.TrimSpace(body) == "" {
		return &ValidationError{Field: "body", Message: "body is required", Err: ErrEmptyBody}
	}

	if len(body) > limits.MaxBodySize {
		return &ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("body size %d exceeds max %d bytes", len(body), limits.MaxBodySize),
			Err:     ErrBodyTooLarge,
		}
	}

	// Check for valid UTF-8
	if !utf8.ValidString(body) {
		return &ValidationError{Field: "body", Message: "body contains invalid UTF-8", Err: ErrInvalidContent}
	}

	// Check for null bytes which could indicate injection attempts
	if strings.ContainsRune(body, '\x00') {
		return &ValidationError{Field: "body", Message: "body contains null bytes", Err: ErrInvalidContent}
	}

	return nil
}

// ValidateMessageContent validates subject and body together using default limits.
func ValidateMessageContent(subject, body string) error {
	return ValidateMessageContentWithLimits(subject, body, DefaultLimits())
}

// ValidateMessageContentWithLimits validates subject and body with configurable limits.
func ValidateMessageContentWithLimits(subject, body string, limits MessageLimits) error {
	if err := ValidateSubjectWithLimits(subject, limits); err != nil {
		return err
	}
	return ValidateBodyWithLimits(body, limits)
}

// ValidateRecipients validates the recipient list.
// The list is the post-dedupe, post-opt-out set about to receive receipts.
func ValidateRecipients(recipients []store.Identity, limits MessageLimits) error {
	if len(recipients) == 0 {
		return &ValidationError{Field: "recipients", Message: "at least one recipient is required", Err: ErrEmptyRecipients}
	}

	if len(recipients) > limits.MaxRecipientCount {
		return &ValidationError{
			Field:   "recipients",
			Message: fmt.Sprintf("recipient count %d exceeds max %d", len(recipients), limits.MaxRecipientCount),
			Err:     ErrTooManyRecipients,
		}
	}

	// Check for incomplete identities (duplicates are deduplicated at delivery time)
	for _, id := range recipients {
		if id.Type == "" || id.ID == "" {
			return &ValidationError{
				Field:   "recipients",
				Message: fmt.Sprintf("incomplete identity %q", id.String()),
				Err:     ErrInvalidParticipant,
			}
		}
	}

	return nil
}

// ValidateAttachments validates the attachment list.
func ValidateAttachments(attachments []store.Attachment, limits MessageLimits) error {
	return ValidateAttachmentsWithMIME(attachments, limits, nil, nil)
}

// ValidateAttachmentsWithMIME validates attachments with MIME type restrictions.
// allowedTypes: if non-empty, only these MIME types are allowed.
// blockedTypes: these MIME types are always blocked, even if in allowedTypes.
func ValidateAttachmentsWithMIME(attachments []store.Attachment, limits MessageLimits, allowedTypes, blockedTypes []string) error {
	if len(attachments) > limits.MaxAttachmentCount {
		return &ValidationError{
			Field:   "attachments",
			Message: fmt.Sprintf("attachment count %d exceeds max %d", len(attachments), limits.MaxAttachmentCount),
			Err:     ErrTooManyAttachments,
		}
	}

	for _, a := range attachments {
		if a.Size > limits.MaxAttachmentSize {
			return &ValidationError{
				Field:   "attachment.size",
				Message: fmt.Sprintf("attachment %q size %d exceeds max %d bytes", a.Filename, a.Size, limits.MaxAttachmentSize),
				Err:     ErrAttachmentTooLarge,
			}
		}
		if a.Filename == "" {
			return &ValidationError{Field: "attachment.filename", Message: "filename is required", Err: ErrInvalidAttachment}
		}
		// Validate MIME type
		if err := ValidateMIMEType(a.ContentType, allowedTypes, blockedTypes); err != nil {
			return &ValidationError{
				Field:   "attachment.content_type",
				Message: fmt.Sprintf("attachment %q: %v", a.Filename, err),
				Err:     ErrInvalidMIMEType,
			}
		}
	}

	return nil
}

// ValidateMIMEType validates a MIME type against allowed and blocked lists.
// Returns nil if the MIME type is valid.
func ValidateMIMEType(contentType string, allowedTypes, blockedTypes []string) error {
	// Normalize content type (remove parameters like charset)
	normalized := normalizeMIMEType(contentType)

	if normalized == "" {
		return fmt.Errorf("empty content type")
	}

	// Check if blocked
	for _, blocked := range blockedTypes {
		if matchMIMEType(normalized, blocked) {
			return fmt.Errorf("content type %q is blocked", contentType)
		}
	}

	// If allowedTypes is specified, check if allowed
	if len(allowedTypes) > 0 {
		allowed := false
		for _, a := range allowedTypes {
			if matchMIMEType(normalized, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("content type %q is not allowed", contentType)
		}
	}

	return nil
}

// normalizeMIMEType extracts the base MIME type without parameters.
// e.g., "text/plain; charset=utf-8" -> "text/plain"
func normalizeMIMEType(contentType string) string {
	ct := strings.TrimSpace(contentType)
	if ct == "" {
		return ""
	}
	// Split on semicolon to remove parameters
	parts := strings.SplitN(ct, ";", 2)
	return strings.ToLower(strings.TrimSpace(parts[0]))
}

// matchMIMEType checks if contentType matches the pattern.
// Supports wildcards: "image/*" matches "image/png", "image/jpeg", etc.
func matchMIMEType(contentType, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	if pattern == contentType {
		return true
	}

	// Check for wildcard patterns like "image/*"
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return strings.HasPrefix(contentType, prefix+"/")
	}

	return false
}

// DefaultBlockedMIMETypes returns MIME types that are commonly blocked for security.
func DefaultBlockedMIMETypes() []string {
	return []string{
		"application/x-msdownload",    // Windows executable
		"application/x-executable",    // Generic executable
		"application/x-msdos-program", // DOS executable
		"application/x-sh",            // Shell script
		"application/x-shellscript",   // Shell script
		"application/x-bat",           // Batch file
		"application/x-msi",           // Windows installer
		"application/vnd.microsoft.portable-executable", // PE executable
		"application/x-dosexec",                         // DOS executable
	}
}

// SafeAttachmentMIMETypes returns commonly allowed safe MIME types.
func SafeAttachmentMIMETypes() []string {
	return []string{
		// Documents
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"text/plain",
		"text/csv",
		"text/html",
		// Images
		"image/*",
		// Audio
		"audio/*",
		// Video
		"video/*",
		// Archives (be careful with these)
		"application/zip",
		"application/gzip",
		"application/x-tar",
	}
}

// validateDelivery validates recipients, content, and attachments for a
// pending delivery. Notifications allow an empty subject.
func validateDelivery(payload *store.Payload, recipients []store.Identity, limits MessageLimits) error {
	if err := ValidateRecipients(recipients, limits); err != nil {
		return err
	}
	if payload.Kind == store.KindMessage {
		if err := ValidateSubjectWithLimits(payload.Subject, limits); err != nil {
			return err
		}
	} else if payload.Subject != "" {
		if err := ValidateSubjectWithLimits(payload.Subject, limits); err != nil {
			return err
		}
	}
	if err := ValidateBodyWithLimits(payload.Body, limits); err != nil {
		return err
	}
	return ValidateAttachments(payload.Attachments, limits)
}
