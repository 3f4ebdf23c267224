package batch

// # Error Codes Reference
//
// This file maps technical errors to user-friendly messages with codes for
// support reference. Users can quote the code to support staff.
//
// # Configuration Errors (RNG001, MAP001-MAP099)
//
//	RNG001 - Invalid range: A column range in the mapping is malformed
//	         Patterns: "invalid range"
//
//	MAP001 - Width mismatch: Source and destination ranges differ in width
//	         Patterns: "mapping width mismatch"
//
//	MAP002 - Order mismatch: Source order does not follow the mapping
//	         Patterns: "mapping order mismatch"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large        Patterns: "file too large"
//	FILE002 - Unreadable workbook   Patterns: "input read error"
//	FILE003 - Wrong file type       Patterns: "unsupported file type"
//	FILE004 - No file               Patterns: "no file provided"
//	FILE005 - No data rows          Patterns: "no data rows"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run cancelled          Patterns: "run cancelled"
//	RUN002 - System busy            Patterns: "too many runs"
//	RUN003 - Run not found          Patterns: "run not found"
//	RUN004 - Request cancelled      Patterns: "context canceled"
//	RUN005 - Request timeout        Patterns: "context deadline exceeded"
//	RUN006 - Unknown strategy       Patterns: "unknown strategy"
//
// # Storage Errors (STO001-STO099)
//
//	STO001 - Archive storage disabled   Patterns: "archive storage disabled"
//	STO002 - Archive not found          Patterns: "archive not found"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests     Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches; check the logs for the technical error.
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come before general ones.

import (
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Configuration (RNG001, MAP001-MAP002)
	// =========================================================================
	{
		pattern: "invalid range",
		msg: UserMessage{
			Message: "The column mapping contains an invalid range",
			Action:  "Fix the mapping configuration and restart the service",
			Code:    "RNG001",
		},
	},
	{
		pattern: "mapping width mismatch",
		msg: UserMessage{
			Message: "A source range and its destination range have different widths",
			Action:  "Fix the mapping configuration and restart the service",
			Code:    "MAP001",
		},
	},
	{
		pattern: "mapping order mismatch",
		msg: UserMessage{
			Message: "The source order does not match the mapping",
			Action:  "List source ranges in the same order as the mapping pairs",
			Code:    "MAP002",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE005)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller workbooks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "The uploaded workbook has no data rows",
			Action:  "Upload a workbook with a header row and at least one data row",
			Code:    "FILE005",
		},
	},
	{
		pattern: "unsupported file type",
		msg: UserMessage{
			Message: "Only .xlsx workbooks are supported",
			Action:  "Save the file as an Excel workbook (.xlsx) and try again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "input read error",
		msg: UserMessage{
			Message: "The uploaded workbook could not be read",
			Action:  "Make sure the file is a valid .xlsx workbook with a single sheet",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select an Excel file to upload",
			Code:    "FILE004",
		},
	},

	// =========================================================================
	// Run Errors (RUN001-RUN006)
	// =========================================================================
	// A deadline is a timeout however the caller wrapped it.
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "RUN005",
		},
	},
	{
		pattern: "run cancelled",
		msg: UserMessage{
			Message: "Processing was cancelled",
			Action:  "Start a new run when ready",
			Code:    "RUN001",
		},
	},
	{
		pattern: "too many runs",
		msg: UserMessage{
			Message: "System is busy processing other files",
			Action:  "Please wait a moment and try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Run not found",
			Action:  "Check the run ID in the history list",
			Code:    "RUN003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "RUN004",
		},
	},
	{
		pattern: "unknown strategy",
		msg: UserMessage{
			Message: "Unknown batching strategy",
			Action:  "Use \"fixed\" or \"group\"",
			Code:    "RUN006",
		},
	},

	// =========================================================================
	// Storage Errors (STO001-STO002)
	// =========================================================================
	{
		pattern: "archive storage disabled",
		msg: UserMessage{
			Message: "Archives are not stored on this server",
			Action:  "Download the archive when processing the file",
			Code:    "STO001",
		},
	},
	{
		pattern: "archive not found",
		msg: UserMessage{
			Message: "The stored archive no longer exists",
			Action:  "Process the file again",
			Code:    "STO002",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the zero UserMessage for a nil error and ERR000 when nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
