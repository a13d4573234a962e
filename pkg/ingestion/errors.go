package ingestion

import "errors"

var errPayloadTooLarge = errors.New("ingestion: webhook payload exceeds size limit")
