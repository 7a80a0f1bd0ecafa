package detect

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/teslashibe/go-ppe/pkg/fusion"
)

const backendRekognition = "rekognition"

// RekognitionAPI is the subset of the Rekognition client used here.
type RekognitionAPI interface {
	DetectProtectiveEquipment(ctx context.Context, params *rekognition.DetectProtectiveEquipmentInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectProtectiveEquipmentOutput, error)
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

// Rekognition is a Detector backed by AWS Rekognition.
type Rekognition struct {
	api    RekognitionAPI
	config *Config
	logger *slog.Logger
}

// NewRekognition creates a backend using the default AWS credential chain.
func NewRekognition(ctx context.Context, opts ...Option) (*Rekognition, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, WrapError(backendRekognition, "load config", err)
	}
	return newRekognition(rekognition.NewFromConfig(awsCfg), cfg), nil
}

// NewRekognitionWithAPI creates a backend over an existing client.
func NewRekognitionWithAPI(api RekognitionAPI, opts ...Option) *Rekognition {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	return newRekognition(api, cfg)
}

func newRekognition(api RekognitionAPI, cfg *Config) *Rekognition {
	return &Rekognition{
		api:    api,
		config: cfg,
		logger: cfg.Logger.With("component", "detect.rekognition"),
	}
}

// DetectProtectiveEquipment runs native PPE detection with summarization
// against the required equipment set.
func (r *Rekognition) DetectProtectiveEquipment(ctx context.Context, img Image) (*fusion.NativeResult, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	required := RequiredEquipment()
	reqTypes := make([]types.ProtectiveEquipmentType, len(required))
	for i, t := range required {
		reqTypes[i] = types.ProtectiveEquipmentType(t)
	}

	out, err := r.api.DetectProtectiveEquipment(ctx, &rekognition.DetectProtectiveEquipmentInput{
		Image: toImage(img),
		SummarizationAttributes: &types.ProtectiveEquipmentSummarizationAttributes{
			MinConfidence:          aws.Float32(float32(r.config.MinConfidence)),
			RequiredEquipmentTypes: reqTypes,
		},
	})
	if err != nil {
		return nil, WrapError(backendRekognition, "DetectProtectiveEquipment", err)
	}

	covered := make(map[int32]bool)
	if out.Summary != nil {
		for _, id := range out.Summary.PersonsWithRequiredEquipment {
			covered[id] = true
		}
	}

	res := &fusion.NativeResult{Persons: make([]fusion.Person, 0, len(out.Persons))}
	for i, p := range out.Persons {
		id := int32(i)
		if p.Id != nil {
			id = *p.Id
		}
		person := fusion.Person{
			ID:                               int(id),
			BoundingBox:                      fromBox(p.BoundingBox),
			Confidence:                       float64(aws.ToFloat32(p.Confidence)),
			BodyParts:                        make([]fusion.BodyPart, 0, len(p.BodyParts)),
			ProtectiveEquipmentSummarization: &fusion.Summarization{AllRequiredEquipmentCovered: covered[id]},
		}
		for _, bp := range p.BodyParts {
			part := fusion.BodyPart{
				Name:                fusion.BodyPartName(bp.Name),
				Confidence:          float64(aws.ToFloat32(bp.Confidence)),
				EquipmentDetections: make([]fusion.EquipmentDetection, 0, len(bp.EquipmentDetections)),
			}
			for _, d := range bp.EquipmentDetections {
				det := fusion.EquipmentDetection{
					Type:            fusion.EquipmentType(d.Type),
					Confidence:      float64(aws.ToFloat32(d.Confidence)),
					BoundingBox:     fromBox(d.BoundingBox),
					DetectionMethod: fusion.MethodNative,
				}
				if d.CoversBodyPart != nil {
					det.CoversBodyPart = &fusion.CoversBodyPart{
						Confidence: float64(aws.ToFloat32(d.CoversBodyPart.Confidence)),
						Value:      d.CoversBodyPart.Value,
					}
				}
				part.EquipmentDetections = append(part.EquipmentDetections, det)
			}
			person.BodyParts = append(person.BodyParts, part)
		}
		res.Persons = append(res.Persons, person)
	}

	r.logger.Debug("ppe detected", "image", img.String(), "persons", len(res.Persons), "compliant", len(covered))
	return res, nil
}

// DetectLabels runs generic label detection.
func (r *Rekognition) DetectLabels(ctx context.Context, img Image) (*fusion.LabelResult, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	out, err := r.api.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image:         toImage(img),
		MaxLabels:     aws.Int32(int32(r.config.MaxLabels)),
		MinConfidence: aws.Float32(float32(r.config.MinConfidence)),
	})
	if err != nil {
		return nil, WrapError(backendRekognition, "DetectLabels", err)
	}

	res := &fusion.LabelResult{Labels: make([]fusion.Label, 0, len(out.Labels))}
	for _, l := range out.Labels {
		label := fusion.Label{
			Name:       aws.ToString(l.Name),
			Confidence: float64(aws.ToFloat32(l.Confidence)),
		}
		for _, inst := range l.Instances {
			label.Instances = append(label.Instances, fusion.Instance{
				BoundingBox: fromBox(inst.BoundingBox),
				Confidence:  float64(aws.ToFloat32(inst.Confidence)),
			})
		}
		res.Labels = append(res.Labels, label)
	}

	r.logger.Debug("labels detected", "image", img.String(), "labels", len(res.Labels))
	return res, nil
}

// DetectFaces runs face detection with all attributes.
func (r *Rekognition) DetectFaces(ctx context.Context, img Image) (*fusion.FaceResult, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	out, err := r.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      toImage(img),
		Attributes: []types.Attribute{types.AttributeAll},
	})
	if err != nil {
		return nil, WrapError(backendRekognition, "DetectFaces", err)
	}

	res := &fusion.FaceResult{FaceDetails: make([]fusion.Face, 0, len(out.FaceDetails))}
	for _, f := range out.FaceDetails {
		face := fusion.Face{
			BoundingBox: fromBox(f.BoundingBox),
			Confidence:  float64(aws.ToFloat32(f.Confidence)),
		}
		if f.Eyeglasses != nil {
			face.Eyeglasses = &fusion.BoolAttribute{
				Value:      f.Eyeglasses.Value,
				Confidence: float64(aws.ToFloat32(f.Eyeglasses.Confidence)),
			}
		}
		if f.Sunglasses != nil {
			face.Sunglasses = &fusion.BoolAttribute{
				Value:      f.Sunglasses.Value,
				Confidence: float64(aws.ToFloat32(f.Sunglasses.Confidence)),
			}
		}
		res.FaceDetails = append(res.FaceDetails, face)
	}

	r.logger.Debug("faces detected", "image", img.String(), "faces", len(res.FaceDetails))
	return res, nil
}

// Health reports whether a client is configured. Rekognition has no
// free ping endpoint.
func (r *Rekognition) Health(ctx context.Context) error {
	if r.api == nil {
		return WrapError(backendRekognition, "", ErrBackendUnavailable)
	}
	return nil
}

// Close is a no-op.
func (r *Rekognition) Close() error {
	return nil
}

func toImage(img Image) *types.Image {
	if len(img.Bytes) > 0 {
		return &types.Image{Bytes: img.Bytes}
	}
	return &types.Image{
		S3Object: &types.S3Object{
			Bucket: aws.String(img.Bucket),
			Name:   aws.String(img.Key),
		},
	}
}

func fromBox(b *types.BoundingBox) *fusion.BoundingBox {
	if b == nil {
		return nil
	}
	return &fusion.BoundingBox{
		Left:   float64(aws.ToFloat32(b.Left)),
		Top:    float64(aws.ToFloat32(b.Top)),
		Width:  float64(aws.ToFloat32(b.Width)),
		Height: float64(aws.ToFloat32(b.Height)),
	}
}

// Ensure Rekognition implements Detector.
var _ Detector = (*Rekognition)(nil)
