package strata

import (
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/stratakv/strata/pkg/core"
	"github.com/stratakv/strata/pkg/storage/dynamo"
)

// UnmarshalStreamImage converts a DynamoDB stream image from a Lambda event
// back into the key and record it stores, so change handlers can work with
// adapter records without a second read. Spilled records come back carrying
// only their overflow pointer attribute.
func UnmarshalStreamImage(image map[string]events.DynamoDBAttributeValue) (*core.Entity, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("strata: empty stream image")
	}

	item := make(map[string]types.AttributeValue, len(image))
	for name, av := range image {
		converted, err := convertStreamAttribute(av)
		if err != nil {
			return nil, fmt.Errorf("strata: stream attribute %s: %w", name, err)
		}
		item[name] = converted
	}
	return dynamo.DecodeItem(item)
}

// convertStreamAttribute maps the Lambda event representation of an
// attribute value onto the SDK's.
func convertStreamAttribute(av events.DynamoDBAttributeValue) (types.AttributeValue, error) {
	switch av.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: av.String()}, nil
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: av.Number()}, nil
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: av.Boolean()}, nil
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: av.Binary()}, nil
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: av.StringSet()}, nil
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: av.NumberSet()}, nil
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: av.BinarySet()}, nil
	case events.DataTypeList:
		list := av.List()
		out := make([]types.AttributeValue, len(list))
		for i, member := range list {
			converted, err := convertStreamAttribute(member)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return &types.AttributeValueMemberL{Value: out}, nil
	case events.DataTypeMap:
		out := make(map[string]types.AttributeValue, len(av.Map()))
		for name, member := range av.Map() {
			converted, err := convertStreamAttribute(member)
			if err != nil {
				return nil, err
			}
			out[name] = converted
		}
		return &types.AttributeValueMemberM{Value: out}, nil
	default:
		return nil, fmt.Errorf("unhandled stream data type %v", av.DataType())
	}
}
