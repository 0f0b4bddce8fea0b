package redis

var DecodeRecord = decodeRecord

var ErrNotRecord = errNotRecord
