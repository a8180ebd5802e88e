package r2s3

import "errors"

var (
	ErrIncompleteConfig = errors.New("r2s3: endpoint, bucket, access key and secret key are required")
	ErrUploadRejected   = errors.New("r2s3: upload rejected")
	ErrOutsideDataDir   = errors.New("r2s3: path outside data dir")
)
