package pkcs7

import (
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/sigen/internal/testcert"
)

// marshal and unmarshal so FullBytes is set
func roundTrip(t *testing.T, l AttributeList) AttributeList {
	t.Helper()
	raw, err := marshalUnsortedSet(l)
	require.NoError(t, err)
	var l2 AttributeList
	_, err = asn1.UnmarshalWithParams(raw, &l2, "set")
	require.NoError(t, err)
	return l2
}

func TestAttributeList(t *testing.T) {
	var l AttributeList
	assert.False(t, l.Exists(OidAttributeSigningTime))
	a := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, l.Add(OidAttributeSigningTime, a))
	ll := roundTrip(t, l)
	assert.True(t, ll.Exists(OidAttributeSigningTime))
	var x time.Time
	if assert.NoError(t, ll.GetOne(OidAttributeSigningTime, &x)) {
		assert.Equal(t, a, x)
	}

	b := a.AddDate(0, 0, 1)
	assert.NoError(t, l.Add(OidAttributeSigningTime, b))
	ll = roundTrip(t, l)
	assert.Error(t, ll.GetOne(OidAttributeSigningTime, &x))
	var times []time.Time
	if assert.NoError(t, ll.GetAll(OidAttributeSigningTime, &times)) {
		assert.Equal(t, []time.Time{a, b}, times)
	}
}

type statementType struct {
	Type asn1.ObjectIdentifier
}

type opusInfo struct {
	ProgramName asn1.RawValue `asn1:"optional"`
	MoreInfo    asn1.RawValue `asn1:"optional"`
}

func TestBuilderAuthenticatedAttributes(t *testing.T) {
	var (
		oidOpus      = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 12}
		oidStatement = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 11}
		oidPurpose   = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 21}
	)
	name, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, Bytes: []byte{0, 'u', 0, 'k', 0, 'i'}})
	require.NoError(t, err)
	url, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, Bytes: []byte("https://example.com")})
	require.NoError(t, err)
	opus := opusInfo{
		ProgramName: asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: name},
		MoreInfo:    asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 1, IsCompound: true, Bytes: url},
	}

	pair := testcert.New(t, testcert.ECDSA)
	sb := NewBuilder(pair.Key, []*x509.Certificate{pair.Cert}, crypto.SHA256)
	require.NoError(t, sb.SetContent(OidData, []byte("image digest")))
	require.NoError(t, sb.AddAuthenticatedAttribute(oidOpus, opus))
	require.NoError(t, sb.AddAuthenticatedAttribute(oidStatement, statementType{Type: oidPurpose}))
	psd, err := sb.Sign()
	require.NoError(t, err)
	der, err := psd.Marshal()
	require.NoError(t, err)

	parsed, err := Unmarshal(der)
	require.NoError(t, err)
	attrs := parsed.Content.SignerInfos[0].AuthenticatedAttributes
	for _, oid := range []asn1.ObjectIdentifier{OidAttributeContentType, OidAttributeMessageDigest, oidOpus, oidStatement} {
		assert.True(t, attrs.Exists(oid), oid.String())
	}
	var st statementType
	require.NoError(t, attrs.GetOne(oidStatement, &st))
	assert.True(t, st.Type.Equal(oidPurpose))
	var got opusInfo
	require.NoError(t, attrs.GetOne(oidOpus, &got))
	assert.Equal(t, 0, got.ProgramName.Tag)
	assert.Equal(t, name, got.ProgramName.Bytes)
	assert.Equal(t, 1, got.MoreInfo.Tag)
	assert.Equal(t, url, got.MoreInfo.Bytes)
}
