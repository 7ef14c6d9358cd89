// Copyright © 2023 The ilp-go Authors
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package conditions translates between the protocol representation of a
// crypto-condition (base64url of a raw SHA-256 digest, or of a preimage) and
// the upper-case hex binary envelope the XRP Ledger carries on EscrowCreate
// and EscrowFinish transactions. Only the PREIMAGE-SHA-256 type is supported.
package conditions

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/ilp-go/xrpescrow/internal/escrowmsgs"
)

const (
	tagPreimageSha256 = 0xA0 // context tag [0] - the PREIMAGE-SHA-256 type
	tagFingerprint    = 0x80 // condition: the 32 byte digest. fulfillment: the preimage
	tagCost           = 0x81 // condition only

	// The cost of a PREIMAGE-SHA-256 condition as written by this engine is
	// always the digest length
	conditionCost = 32
)

// EncodeCondition takes the protocol condition (base64url, unpadded, of a raw
// 32 byte SHA-256 digest) and returns the ledger condition record in
// upper-case hex.
func EncodeCondition(ctx context.Context, condition string) (string, error) {
	hash, err := decodeBase64(condition)
	if err != nil {
		return "", i18n.NewError(ctx, escrowmsgs.MsgBadConditionDigest, err)
	}
	if len(hash) != sha256.Size {
		return "", i18n.NewError(ctx, escrowmsgs.MsgBadConditionDigest, "wrong digest length")
	}
	var buf bytes.Buffer
	buf.WriteByte(tagPreimageSha256)
	buf.Write(derLength(sha256.Size + 2 + 3))
	buf.WriteByte(tagFingerprint)
	buf.Write(derLength(sha256.Size))
	buf.Write(hash)
	buf.WriteByte(tagCost)
	buf.WriteByte(0x01)
	buf.WriteByte(conditionCost)
	return strings.ToUpper(hex.EncodeToString(buf.Bytes())), nil
}

// DecodeCondition takes the ledger condition record in hex and returns the
// protocol condition. Any condition type other than PREIMAGE-SHA-256 with a
// cost of 32 is an error.
func DecodeCondition(ctx context.Context, ledgerCondition string) (string, error) {
	b, err := hex.DecodeString(ledgerCondition)
	if err != nil {
		return "", i18n.NewError(ctx, escrowmsgs.MsgBadLedgerCondition, ledgerCondition, err)
	}
	inner, err := expectTLV(b, tagPreimageSha256, true)
	if err != nil {
		return "", i18n.NewError(ctx, escrowmsgs.MsgBadLedgerCondition, ledgerCondition, err)
	}
	hash, rest, err := readTLV(inner, tagFingerprint)
	if err != nil || len(hash) != sha256.Size {
		return "", i18n.NewError(ctx, escrowmsgs.MsgBadLedgerCondition, ledgerCondition, "bad fingerprint")
	}
	cost, rest, err := readTLV(rest, tagCost)
	if err != nil || len(rest) != 0 || len(cost) != 1 || cost[0] != conditionCost {
		return "", i18n.NewError(ctx, escrowmsgs.MsgBadLedgerCondition, ledgerCondition, "bad cost")
	}
	return base64.RawURLEncoding.EncodeToString(hash), nil
}

// EncodeFulfillment takes the protocol fulfillment (base64url preimage of any
// length) and returns the ledger fulfillment record in upper-case hex.
func EncodeFulfillment(ctx context.Context, fulfillment string) (string, error) {
	preimage, err := decodeBase64(fulfillment)
	if err != nil {
		return "", i18n.NewError(ctx, escrowmsgs.MsgBadFulfillmentEncoding, err)
	}
	inner := append([]byte{tagFingerprint}, derLength(len(preimage))...)
	inner = append(inner, preimage...)
	out := append([]byte{tagPreimageSha256}, derLength(len(inner))...)
	out = append(out, inner...)
	return strings.ToUpper(hex.EncodeToString(out)), nil
}

// DecodeFulfillment takes the ledger fulfillment record in hex and returns
// the protocol fulfillment.
func DecodeFulfillment(ctx context.Context, ledgerFulfillment string) (string, error) {
	b, err := hex.DecodeString(ledgerFulfillment)
	if err != nil {
		return "", i18n.NewError(ctx, escrowmsgs.MsgBadLedgerFulfillment, ledgerFulfillment, err)
	}
	inner, err := expectTLV(b, tagPreimageSha256, true)
	if err != nil {
		return "", i18n.NewError(ctx, escrowmsgs.MsgBadLedgerFulfillment, ledgerFulfillment, err)
	}
	preimage, rest, err := readTLV(inner, tagFingerprint)
	if err != nil || len(rest) != 0 {
		return "", i18n.NewError(ctx, escrowmsgs.MsgBadLedgerFulfillment, ledgerFulfillment, "bad preimage record")
	}
	return base64.RawURLEncoding.EncodeToString(preimage), nil
}

// Digest returns the protocol condition committed to by a protocol
// fulfillment - the base64url SHA-256 of the preimage.
func Digest(ctx context.Context, fulfillment string) (string, error) {
	preimage, err := decodeBase64(fulfillment)
	if err != nil {
		return "", i18n.NewError(ctx, escrowmsgs.MsgBadFulfillmentEncoding, err)
	}
	hash := sha256.Sum256(preimage)
	return base64.RawURLEncoding.EncodeToString(hash[:]), nil
}

// Matches reports whether a protocol fulfillment hashes to a protocol
// condition
func Matches(ctx context.Context, fulfillment, condition string) bool {
	digest, err := Digest(ctx, fulfillment)
	if err != nil {
		return false
	}
	expected, err := decodeBase64(condition)
	if err != nil || len(expected) != sha256.Size {
		return false
	}
	return digest == base64.RawURLEncoding.EncodeToString(expected)
}

// decodeBase64 accepts both the URL-safe and standard alphabets, padded or
// not, as the protocol peers are not consistent about which they send
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if strings.ContainsAny(s, "+/") {
		return base64.RawStdEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}

func derLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var lenBytes []byte
	for v := n; v > 0; v >>= 8 {
		lenBytes = append([]byte{byte(v)}, lenBytes...)
	}
	return append([]byte{0x80 | byte(len(lenBytes))}, lenBytes...)
}

func readLength(b []byte) (length, consumed int, err error) {
	if len(b) == 0 {
		return 0, 0, errTruncated
	}
	if b[0] < 0x80 {
		return int(b[0]), 1, nil
	}
	count := int(b[0] & 0x7F)
	if count == 0 || count > 4 || len(b) < 1+count {
		return 0, 0, errTruncated
	}
	for _, d := range b[1 : 1+count] {
		length = length<<8 | int(d)
	}
	return length, 1 + count, nil
}

// readTLV consumes one tag-length-value record from the front of b
func readTLV(b []byte, tag byte) (value, rest []byte, err error) {
	if len(b) == 0 || b[0] != tag {
		return nil, nil, errWrongTag
	}
	length, consumed, err := readLength(b[1:])
	if err != nil {
		return nil, nil, err
	}
	start := 1 + consumed
	if len(b) < start+length {
		return nil, nil, errTruncated
	}
	return b[start : start+length], b[start+length:], nil
}

// expectTLV reads one record and, when exact is set, requires it to consume
// the whole input
func expectTLV(b []byte, tag byte, exact bool) ([]byte, error) {
	value, rest, err := readTLV(b, tag)
	if err != nil {
		return nil, err
	}
	if exact && len(rest) != 0 {
		return nil, errTrailingData
	}
	return value, nil
}

type codecError string

func (e codecError) Error() string { return string(e) }

const (
	errTruncated    = codecError("truncated record")
	errWrongTag     = codecError("unsupported condition type")
	errTrailingData = codecError("trailing bytes after record")
)
