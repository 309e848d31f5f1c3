package mailboxer

import (
	"errors"
	"strings"
	"testing"

	"github.com/full-stack-biz/mailboxer/store"
)

func TestValidateSubject(t *testing.T) {
	t.Run("accepts normal subjects", func(t *testing.T) {
		for _, subject := range []string{"hello", "  padded  ", "emoji ✈️"} {
			if err := ValidateSubject(subject); err != nil {
				t.Errorf("ValidateSubject(%q) = %v, want nil", subject, err)
			}
		}
	})

	t.Run("rejects blank subjects", func(t *testing.T) {
		for _, subject := range []string{"", "   ", "\t\n"} {
			if err := ValidateSubject(subject); !errors.Is(err, ErrEmptySubject) {
				t.Errorf("ValidateSubject(%q) = %v, want ErrEmptySubject", subject, err)
			}
		}
	})

	t.Run("rejects over-long subjects", func(t *testing.T) {
		long := strings.Repeat("a", DefaultMaxSubjectLength+1)
		if err := ValidateSubject(long); !errors.Is(err, ErrSubjectTooLong) {
			t.Errorf("expected ErrSubjectTooLong, got %v", err)
		}
	})

	t.Run("rejects control characters", func(t *testing.T) {
		if err := ValidateSubject("bad\x07subject"); !errors.Is(err, ErrInvalidContent) {
			t.Errorf("expected ErrInvalidContent, got %v", err)
		}
	})

	t.Run("rejects invalid UTF-8", func(t *testing.T) {
		if err := ValidateSubject("bad\xff\xfe"); !errors.Is(err, ErrInvalidContent) {
			t.Errorf("expected ErrInvalidContent, got %v", err)
		}
	})

	t.Run("custom limits apply", func(t *testing.T) {
		limits := DefaultLimits()
		limits.MaxSubjectLength = 5
		if err := ValidateSubjectWithLimits("too long", limits); !errors.Is(err, ErrSubjectTooLong) {
			t.Errorf("expected ErrSubjectTooLong, got %v", err)
		}
	})
}

func TestValidateBody(t *testing.T) {
	t.Run("rejects blank bodies", func(t *testing.T) {
		if err := ValidateBody("  \n "); !errors.Is(err, ErrEmptyBody) {
			t.Errorf("expected ErrEmptyBody, got %v", err)
		}
	})

	t.Run("rejects over-long bodies", func(t *testing.T) {
		limits := DefaultLimits()
		limits.MaxBodySize = 10
		if err := ValidateBodyWithLimits(strings.Repeat("x", 11), limits); !errors.Is(err, ErrBodyTooLarge) {
			t.Errorf("expected ErrBodyTooLarge, got %v", err)
		}
	})

	t.Run("rejects null bytes", func(t *testing.T) {
		if err := ValidateBody("a\x00b"); !errors.Is(err, ErrInvalidContent) {
			t.Errorf("expected ErrInvalidContent, got %v", err)
		}
	})

	t.Run("newlines and tabs are fine", func(t *testing.T) {
		if err := ValidateBody("line one\nline two\ttabbed"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestValidateRecipients(t *testing.T) {
	limits := DefaultLimits()

	t.Run("empty list fails", func(t *testing.T) {
		if err := ValidateRecipients(nil, limits); !errors.Is(err, ErrEmptyRecipients) {
			t.Errorf("expected ErrEmptyRecipients, got %v", err)
		}
	})

	t.Run("too many recipients fails", func(t *testing.T) {
		small := limits
		small.MaxRecipientCount = 2
		recipients := []store.Identity{
			NewIdentity("user", "a"),
			NewIdentity("user", "b"),
			NewIdentity("user", "c"),
		}
		if err := ValidateRecipients(recipients, small); !errors.Is(err, ErrTooManyRecipients) {
			t.Errorf("expected ErrTooManyRecipients, got %v", err)
		}
	})

	t.Run("incomplete identity fails", func(t *testing.T) {
		recipients := []store.Identity{{Type: "user"}}
		if err := ValidateRecipients(recipients, limits); !errors.Is(err, ErrInvalidParticipant) {
			t.Errorf("expected ErrInvalidParticipant, got %v", err)
		}
	})
}

func TestValidateAttachments(t *testing.T) {
	limits := DefaultLimits()

	t.Run("oversized attachment fails", func(t *testing.T) {
		attachments := []store.Attachment{{
			Filename:    "big.bin",
			ContentType: "application/octet-stream",
			Size:        limits.MaxAttachmentSize + 1,
		}}
		if err := ValidateAttachments(attachments, limits); !errors.Is(err, ErrAttachmentTooLarge) {
			t.Errorf("expected ErrAttachmentTooLarge, got %v", err)
		}
	})

	t.Run("missing filename fails", func(t *testing.T) {
		attachments := []store.Attachment{{
			ContentType: "text/plain",
			Size:        10,
		}}
		if err := ValidateAttachments(attachments, limits); !errors.Is(err, ErrInvalidAttachment) {
			t.Errorf("expected ErrInvalidAttachment, got %v", err)
		}
	})

	t.Run("blocked MIME type fails", func(t *testing.T) {
		attachments := []store.Attachment{{
			Filename:    "run.exe",
			ContentType: "application/x-msdownload",
			Size:        10,
		}}
		err := ValidateAttachmentsWithMIME(attachments, limits, nil, DefaultBlockedMIMETypes())
		if !errors.Is(err, ErrInvalidMIMEType) {
			t.Errorf("expected ErrInvalidMIMEType, got %v", err)
		}
	})

	t.Run("allow list restricts types", func(t *testing.T) {
		attachments := []store.Attachment{{
			Filename:    "photo.png",
			ContentType: "image/png",
			Size:        10,
		}}
		if err := ValidateAttachmentsWithMIME(attachments, limits, []string{"image/*"}, nil); err != nil {
			t.Errorf("image/png should match image/*, got %v", err)
		}

		attachments[0].ContentType = "application/pdf"
		attachments[0].Filename = "doc.pdf"
		err := ValidateAttachmentsWithMIME(attachments, limits, []string{"image/*"}, nil)
		if !errors.Is(err, ErrInvalidMIMEType) {
			t.Errorf("expected ErrInvalidMIMEType, got %v", err)
		}
	})
}

func TestValidationFailuresCarryField(t *testing.T) {
	limits := DefaultLimits()
	cases := []struct {
		name     string
		err      error
		field    string
		sentinel error
	}{
		{"blank subject", ValidateSubject(""), "subject", ErrEmptySubject},
		{"blank body", ValidateBody("  "), "body", ErrEmptyBody},
		{"no recipients", ValidateRecipients(nil, limits), "recipients", ErrEmptyRecipients},
		{
			"oversized attachment",
			ValidateAttachments([]store.Attachment{{
				Filename:    "big.bin",
				ContentType: "application/octet-stream",
				Size:        limits.MaxAttachmentSize + 1,
			}}, limits),
			"attachment.size",
			ErrAttachmentTooLarge,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ve *ValidationError
			if !errors.As(tc.err, &ve) {
				t.Fatalf("expected a *ValidationError, got %T", tc.err)
			}
			if ve.Field != tc.field {
				t.Errorf("field = %q, want %q", ve.Field, tc.field)
			}
			if !errors.Is(tc.err, tc.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tc.err, tc.sentinel)
			}
			if !errors.Is(tc.err, ErrInvalidMessage) {
				t.Error("every validation failure should match ErrInvalidMessage")
			}
		})
	}
}

func TestValidateMIMEType(t *testing.T) {
	t.Run("parameters are stripped before matching", func(t *testing.T) {
		if err := ValidateMIMEType("text/plain; charset=utf-8", []string{"text/plain"}, nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("matching is case insensitive", func(t *testing.T) {
		if err := ValidateMIMEType("Image/PNG", []string{"image/*"}, nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("empty content type fails", func(t *testing.T) {
		if err := ValidateMIMEType("", nil, nil); err == nil {
			t.Error("expected an error for empty content type")
		}
	})

	t.Run("block list wins over allow list", func(t *testing.T) {
		err := ValidateMIMEType("application/x-sh", []string{"application/x-sh"}, []string{"application/x-sh"})
		if err == nil {
			t.Error("blocked type must fail even when allowed")
		}
	})
}
