package certificate

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"registration-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is satisfied by *s3.Client.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive stores rendered certificates in a bucket. Keys depend only on
// the certificate number so a repeated upload overwrites the same object.
type Archive struct {
	client    ObjectPutter
	bucket    string
	prefix    string
	verifyURL string
}

func NewArchive(client ObjectPutter, bucket, prefix, verifyURL string) *Archive {
	return &Archive{client: client, bucket: bucket, prefix: prefix, verifyURL: verifyURL}
}

// Key is the object key for a certificate, e.g. certificates/2025/RC-2025-SML-000001.pdf.
func (a *Archive) Key(cert *models.Certificate) string {
	return path.Join(a.prefix, cert.IssuedAt.Format("2006"), cert.CertificateNumber+".pdf")
}

// Store renders cert and uploads it, returning the object key.
func (a *Archive) Store(ctx context.Context, cert *models.Certificate) (string, error) {
	doc, err := Render(cert, VerificationLink(a.verifyURL, cert.CertificateNumber))
	if err != nil {
		return "", err
	}
	key := a.Key(cert)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(doc),
		ContentType: aws.String("application/pdf"),
		Metadata: map[string]string{
			"application-id": cert.ApplicationID,
			"district":       cert.District,
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}
