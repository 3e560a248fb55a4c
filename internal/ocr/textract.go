package ocr

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
)

// TextractDetector implements TextDetector using AWS Textract's synchronous
// DetectDocumentText API.
type TextractDetector struct {
	client *textract.Client
}

func NewTextractDetector(client *textract.Client) *TextractDetector {
	return &TextractDetector{client: client}
}

func NewTextractDetectorFromEnv(ctx context.Context, region string) (*TextractDetector, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewTextractDetector(textract.NewFromConfig(cfg)), nil
}

func (d *TextractDetector) DetectText(ctx context.Context, doc []byte) ([]Block, error) {
	resp, err := d.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: doc},
	})
	if err != nil {
		return nil, fmt.Errorf("detect document text: %w", err)
	}

	blocks := make([]Block, 0, len(resp.Blocks))
	for _, b := range resp.Blocks {
		blocks = append(blocks, Block{
			Type: string(b.BlockType),
			Text: aws.ToString(b.Text),
		})
	}
	return blocks, nil
}

var _ TextDetector = (*TextractDetector)(nil)
