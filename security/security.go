package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/wudi/pdfredact/ir/raw"
)

type Permissions struct{ Print, Modify, Copy, ModifyAnnotations, FillForms, ExtractAccessible, Assemble, PrintHighQuality bool }

// DataClass identifies the kind of payload being decrypted.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
	DataClassMetadataStream
)

var (
	ErrBadPassword        = errors.New("password does not open document")
	ErrUnsupportedHandler = errors.New("unsupported security handler")
	ErrNotAuthenticated   = errors.New("security handler not authenticated")
)

// Handler decrypts strings and streams of a protected document once a
// password has been accepted. Documents are always written unencrypted, so
// there is no encryption side.
type Handler interface {
	IsEncrypted() bool
	Authenticate(password string) error
	Decrypt(ref raw.ObjectRef, data []byte, class DataClass) ([]byte, error)
	DecryptWithFilter(ref raw.ObjectRef, data []byte, class DataClass, cryptFilter string) ([]byte, error)
	Permissions() Permissions
	EncryptMetadata() bool
	Revision() int
}

type HandlerBuilder struct {
	encryptDict *raw.DictObj
	fileID      []byte
}

func (b *HandlerBuilder) WithEncryptDict(d *raw.DictObj) *HandlerBuilder {
	b.encryptDict = d
	return b
}
func (b *HandlerBuilder) WithFileID(id []byte) *HandlerBuilder { b.fileID = id; return b }

// Build returns the handler described by the encryption dictionary, or a
// no-op handler when there is none.
func (b *HandlerBuilder) Build() (Handler, error) {
	d := b.encryptDict
	if d == nil {
		return noEncryptionHandler{}, nil
	}
	if f := d.Name("Filter"); f != "" && f != "Standard" {
		return nil, fmt.Errorf("%w: /Filter /%s", ErrUnsupportedHandler, f)
	}
	v := int(numberVal(d, "V", 0))
	if v == 0 {
		v = 1
	}
	r := int(numberVal(d, "R", 2))
	if v > 5 || v == 3 || r < 2 || r > 6 {
		return nil, fmt.Errorf("%w: V=%d R=%d", ErrUnsupportedHandler, v, r)
	}
	keyLen := int(numberVal(d, "Length", 40))
	if keyLen < 40 || keyLen > 128 || keyLen%8 != 0 {
		keyLen = 40
	}
	if r == 2 {
		keyLen = 40
	}
	h := &standardHandler{
		v:           v,
		r:           r,
		keyBytes:    keyLen / 8,
		o:           stringBytes(d, "O"),
		u:           stringBytes(d, "U"),
		oe:          stringBytes(d, "OE"),
		ue:          stringBytes(d, "UE"),
		p:           int32(numberVal(d, "P", 0)),
		fileID:      b.fileID,
		encryptMeta: true,
		streamAlgo:  algoRC4,
		stringAlgo:  algoRC4,
	}
	if bv, ok := d.KV["EncryptMetadata"].(raw.BoolObj); ok {
		h.encryptMeta = bv.V
	}
	if v >= 4 {
		filters, err := parseCryptFilters(d)
		if err != nil {
			return nil, err
		}
		h.cryptFilters = filters
		h.streamAlgo = resolveCryptFilter(d.Name("StmF"), filters)
		h.stringAlgo = resolveCryptFilter(d.Name("StrF"), filters)
		for _, algo := range filters {
			if algo == algoAES128 && h.keyBytes < 16 {
				h.keyBytes = 16
			}
		}
	}
	if r >= 5 {
		h.keyBytes = 32
	}
	return h, nil
}

type cryptAlgo int

const (
	algoNone cryptAlgo = iota
	algoRC4
	algoAES128
	algoAES256
)

type standardHandler struct {
	key          []byte
	v, r         int
	keyBytes     int
	o, u         []byte
	oe, ue       []byte
	p            int32
	fileID       []byte
	encryptMeta  bool
	streamAlgo   cryptAlgo
	stringAlgo   cryptAlgo
	cryptFilters map[string]cryptAlgo
}

func (h *standardHandler) IsEncrypted() bool     { return true }
func (h *standardHandler) EncryptMetadata() bool { return h.encryptMeta }
func (h *standardHandler) Revision() int         { return h.r }

// Authenticate accepts either the user or the owner password.
func (h *standardHandler) Authenticate(password string) error {
	pwd := []byte(password)
	if h.r >= 5 {
		if len(pwd) > 127 {
			pwd = pwd[:127]
		}
		if key, ok := h.authenticateUserAES256(pwd); ok {
			h.key = key
			return nil
		}
		if key, ok := h.authenticateOwnerAES256(pwd); ok {
			h.key = key
			return nil
		}
		return ErrBadPassword
	}
	if key, ok := h.authenticateUser(padPassword(pwd)); ok {
		h.key = key
		return nil
	}
	if userPad := h.recoverUserPassword(pwd); userPad != nil {
		if key, ok := h.authenticateUser(userPad); ok {
			h.key = key
			return nil
		}
	}
	return ErrBadPassword
}

// authenticateUser implements the user password check for R2-R4.
func (h *standardHandler) authenticateUser(padded []byte) ([]byte, bool) {
	key := deriveKey(padded, h.o, h.p, h.fileID, h.keyBytes, h.r, h.encryptMeta)
	expected := computeU(key, h.fileID, h.r)
	if h.r == 2 {
		return key, bytes.Equal(expected, h.u[:min(32, len(h.u))])
	}
	return key, len(h.u) >= 16 && bytes.Equal(expected[:16], h.u[:16])
}

// recoverUserPassword decrypts /O with the owner password to obtain the
// padded user password (R2-R4).
func (h *standardHandler) recoverUserPassword(ownerPwd []byte) []byte {
	if len(h.o) < 32 {
		return nil
	}
	sum := md5.Sum(padPassword(ownerPwd))
	digest := sum[:]
	n := 5
	if h.r >= 3 {
		n = h.keyBytes
		for i := 0; i < 50; i++ {
			s := md5.Sum(digest[:n])
			digest = s[:]
		}
	}
	key := digest[:n]
	out := append([]byte(nil), h.o[:32]...)
	if h.r == 2 {
		return rc4Simple(key, out)
	}
	for i := 19; i >= 0; i-- {
		out = rc4Simple(xorKey(key, byte(i)), out)
	}
	return out
}

func (h *standardHandler) authenticateUserAES256(pwd []byte) ([]byte, bool) {
	if len(h.u) < 48 || len(h.ue) < 32 {
		return nil, false
	}
	if !bytes.Equal(hashAES256(pwd, h.u[32:40], nil, h.r), h.u[:32]) {
		return nil, false
	}
	inter := hashAES256(pwd, h.u[40:48], nil, h.r)
	key, err := aesCBCNoIV(inter, h.ue[:32])
	return key, err == nil
}

func (h *standardHandler) authenticateOwnerAES256(pwd []byte) ([]byte, bool) {
	if len(h.o) < 48 || len(h.oe) < 32 || len(h.u) < 48 {
		return nil, false
	}
	if !bytes.Equal(hashAES256(pwd, h.o[32:40], h.u[:48], h.r), h.o[:32]) {
		return nil, false
	}
	inter := hashAES256(pwd, h.o[40:48], h.u[:48], h.r)
	key, err := aesCBCNoIV(inter, h.oe[:32])
	return key, err == nil
}

func (h *standardHandler) Decrypt(ref raw.ObjectRef, data []byte, class DataClass) ([]byte, error) {
	return h.DecryptWithFilter(ref, data, class, "")
}

func (h *standardHandler) DecryptWithFilter(ref raw.ObjectRef, data []byte, class DataClass, cryptFilter string) ([]byte, error) {
	if h.key == nil {
		return nil, ErrNotAuthenticated
	}
	if class == DataClassMetadataStream && !h.encryptMeta {
		return data, nil
	}
	algo, err := h.algoFor(class, cryptFilter)
	if err != nil {
		return nil, err
	}
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := objectKey(h.key, ref.Num, ref.Gen, h.r, algo)
	if algo == algoRC4 {
		return rc4Simple(key, data), nil
	}
	return aesDecrypt(key, data)
}

func (h *standardHandler) algoFor(class DataClass, filter string) (cryptAlgo, error) {
	switch filter {
	case "Identity":
		return algoNone, nil
	case "":
		if class == DataClassString {
			return h.stringAlgo, nil
		}
		return h.streamAlgo, nil
	}
	if algo, ok := h.cryptFilters[filter]; ok {
		return algo, nil
	}
	return algoNone, fmt.Errorf("crypt filter %s not defined", filter)
}

func (h *standardHandler) Permissions() Permissions {
	return Permissions{
		Print:             h.p&(1<<2) != 0,
		Modify:            h.p&(1<<3) != 0,
		Copy:              h.p&(1<<4) != 0,
		ModifyAnnotations: h.p&(1<<5) != 0,
		FillForms:         h.p&(1<<8) != 0,
		ExtractAccessible: h.p&(1<<9) != 0,
		Assemble:          h.p&(1<<10) != 0,
		PrintHighQuality:  h.p&(1<<11) != 0,
	}
}

type noEncryptionHandler struct{}

func (noEncryptionHandler) IsEncrypted() bool                  { return false }
func (noEncryptionHandler) Authenticate(password string) error { return nil }
func (noEncryptionHandler) Decrypt(_ raw.ObjectRef, data []byte, _ DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) DecryptWithFilter(_ raw.ObjectRef, data []byte, _ DataClass, _ string) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Permissions() Permissions {
	return Permissions{Print: true, Modify: true, Copy: true, ModifyAnnotations: true, FillForms: true, ExtractAccessible: true, Assemble: true, PrintHighQuality: true}
}
func (noEncryptionHandler) EncryptMetadata() bool { return false }
func (noEncryptionHandler) Revision() int         { return 0 }

// NoopHandler returns a handler for unencrypted documents.
func NoopHandler() Handler { return noEncryptionHandler{} }

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	out := make([]byte, 32)
	n := copy(out, pwd)
	copy(out[n:], passwordPadding)
	return out
}

// deriveKey computes the file key from a padded password (R2-R4).
func deriveKey(padded, owner []byte, p int32, fileID []byte, n, r int, encryptMeta bool) []byte {
	h := md5.New()
	h.Write(padded)
	h.Write(owner[:min(32, len(owner))])
	var pb [4]byte
	binary.LittleEndian.PutUint32(pb[:], uint32(p))
	h.Write(pb[:])
	h.Write(fileID)
	if r >= 4 && !encryptMeta {
		h.Write([]byte{0xff, 0xff, 0xff, 0xff})
	}
	digest := h.Sum(nil)
	if r >= 3 {
		for i := 0; i < 50; i++ {
			s := md5.Sum(digest[:n])
			digest = s[:]
		}
	}
	return digest[:n]
}

// computeU returns the expected /U entry for key. For R3 and later only
// the first 16 bytes are significant.
func computeU(key, fileID []byte, r int) []byte {
	if r == 2 {
		return rc4Simple(key, passwordPadding)
	}
	h := md5.New()
	h.Write(passwordPadding)
	h.Write(fileID)
	out := h.Sum(nil)
	for i := 0; i < 20; i++ {
		out = rc4Simple(xorKey(key, byte(i)), out)
	}
	return append(out, make([]byte, 16)...)
}

// hashAES256 is the R5 SHA-256 check and the R6 iterated hash.
func hashAES256(pwd, salt, udata []byte, r int) []byte {
	h := sha256.New()
	h.Write(pwd)
	h.Write(salt)
	h.Write(udata)
	k := h.Sum(nil)
	if r < 6 {
		return k
	}
	var e []byte
	for i := 0; i < 64 || int(e[len(e)-1]) > i-32; i++ {
		seq := make([]byte, 0, len(pwd)+len(k)+len(udata))
		seq = append(seq, pwd...)
		seq = append(seq, k...)
		seq = append(seq, udata...)
		k1 := bytes.Repeat(seq, 64)
		block, _ := aes.NewCipher(k[:16])
		e = make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)
		mod := 0
		for _, b := range e[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		default:
			s := sha512.Sum512(e)
			k = s[:]
		}
	}
	return k[:32]
}

func parseCryptFilters(d *raw.DictObj) (map[string]cryptAlgo, error) {
	out := map[string]cryptAlgo{"Identity": algoNone}
	cf, ok := d.KV["CF"].(*raw.DictObj)
	if !ok {
		return out, nil
	}
	for name, entry := range cf.KV {
		fd, ok := entry.(*raw.DictObj)
		if !ok {
			continue
		}
		switch cfm := fd.Name("CFM"); cfm {
		case "", "None":
			out[name] = algoNone
		case "V2":
			out[name] = algoRC4
		case "AESV2":
			out[name] = algoAES128
		case "AESV3":
			out[name] = algoAES256
		default:
			return nil, fmt.Errorf("%w: crypt method /%s", ErrUnsupportedHandler, cfm)
		}
	}
	return out, nil
}

func resolveCryptFilter(name string, filters map[string]cryptAlgo) cryptAlgo {
	if name == "" {
		return algoNone
	}
	if algo, ok := filters[name]; ok {
		return algo
	}
	return algoNone
}

func objectKey(fileKey []byte, objNum, gen int, r int, algo cryptAlgo) []byte {
	if r >= 5 || algo == algoAES256 {
		return fileKey
	}
	h := md5.New()
	h.Write(fileKey)
	h.Write([]byte{byte(objNum), byte(objNum >> 8), byte(objNum >> 16), byte(gen), byte(gen >> 8)})
	if algo == algoAES128 {
		h.Write([]byte("sAlT"))
	}
	sum := h.Sum(nil)
	return sum[:min(len(fileKey)+5, 16)]
}

func xorKey(key []byte, v byte) []byte {
	out := make([]byte, len(key))
	for i := range key {
		out[i] = key[i] ^ v
	}
	return out
}

func rc4Simple(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

// aesDecrypt decrypts IV-prefixed CBC data. Damaged padding is tolerated by
// keeping the unpadded blocks as they are.
func aesDecrypt(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, fmt.Errorf("aes payload of %d bytes has no IV", len(data))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv, body := data[:aes.BlockSize], data[aes.BlockSize:]
	body = body[:len(body)-len(body)%aes.BlockSize]
	if len(body) == 0 {
		return []byte{}, nil
	}
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	if pad := int(out[len(out)-1]); pad >= 1 && pad <= aes.BlockSize && pad <= len(out) {
		if bytes.Equal(out[len(out)-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) {
			out = out[:len(out)-pad]
		}
	}
	return out, nil
}

func aesCBCNoIV(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes data not block aligned")
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, data)
	return out, nil
}

func numberVal(d *raw.DictObj, key string, def int64) int64 {
	if n, ok := d.KV[key].(raw.NumberObj); ok {
		return n.Int()
	}
	return def
}

func stringBytes(d *raw.DictObj, key string) []byte {
	if s, ok := d.KV[key].(raw.StringObj); ok {
		return s.Bytes
	}
	return nil
}
