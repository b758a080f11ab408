package grpcclient

import (
	"fmt"
	"image"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/explab/explab/internal/errors"
	"github.com/explab/explab/internal/imgproc"
	"github.com/explab/explab/internal/ocr"
)

func encodeRequest(img image.Image) (*wrapperspb.BytesValue, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, apperrors.New(apperrors.CodeOCRInvalidImage, "empty image")
	}
	data, err := imgproc.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(data), nil
}

func decodeResults(list *structpb.ListValue) ([]ocr.TextResult, error) {
	out := make([]ocr.TextResult, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, apperrors.Newf(apperrors.CodeOCRExtractFailed, "result %d is not an object", i)
		}
		f := s.GetFields()
		res := ocr.TextResult{
			Text:       f["text"].GetStringValue(),
			Confidence: f["confidence"].GetNumberValue(),
		}
		if box := f["box"].GetListValue(); box != nil {
			b, err := decodeBox(box)
			if err != nil {
				return nil, apperrors.Wrapf(err, apperrors.CodeOCRExtractFailed, "result %d", i)
			}
			res.Box = b
		}
		out = append(out, res)
	}
	return out, nil
}

func decodeBox(list *structpb.ListValue) (ocr.BoundingBox, error) {
	vals := list.GetValues()
	if len(vals) != 4 {
		return ocr.BoundingBox{}, fmt.Errorf("box has %d coordinates, want 4", len(vals))
	}
	c := make([]int, 4)
	for i, v := range vals {
		c[i] = int(v.GetNumberValue())
	}
	return ocr.BoundingBox{XMin: c[0], YMin: c[1], XMax: c[2], YMax: c[3]}, nil
}

// encodeResults is the inverse of decodeResults, used by in-process servers.
func encodeResults(results []ocr.TextResult) (*structpb.ListValue, error) {
	vals := make([]any, len(results))
	for i, r := range results {
		vals[i] = map[string]any{
			"text":       r.Text,
			"confidence": r.Confidence,
			"box":        []any{r.Box.XMin, r.Box.YMin, r.Box.XMax, r.Box.YMax},
		}
	}
	return structpb.NewList(vals)
}
