package strata

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalStreamImage(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"pk":     events.NewStringAttribute("orgs/id#00000000000000000001/users"),
		"sk":     events.NewStringAttribute("id#00000000000000000005"),
		"name":   events.NewStringAttribute("alice"),
		"age":    events.NewNumberAttribute("30"),
		"active": events.NewBooleanAttribute(true),
		"tags": events.NewListAttribute([]events.DynamoDBAttributeValue{
			events.NewStringAttribute("a"),
			events.NewStringAttribute("b"),
		}),
		"meta": events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{
			"tier": events.NewStringAttribute("gold"),
		}),
	}

	ent, err := UnmarshalStreamImage(image)
	require.NoError(t, err)

	assert.Equal(t, "orgs/1/users/5", ent.Key.String())
	assert.Equal(t, "alice", ent.Data["name"])
	assert.Equal(t, float64(30), ent.Data["age"])
	assert.Equal(t, true, ent.Data["active"])
	assert.Equal(t, []any{"a", "b"}, ent.Data["tags"])
	assert.Equal(t, map[string]any{"tier": "gold"}, ent.Data["meta"])
	assert.NotContains(t, ent.Data, "pk")
	assert.NotContains(t, ent.Data, "sk")
}

func TestUnmarshalStreamImage_NamedKey(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"pk":    events.NewStringAttribute("settings"),
		"sk":    events.NewStringAttribute("name#theme"),
		"value": events.NewStringAttribute("dark"),
	}

	ent, err := UnmarshalStreamImage(image)
	require.NoError(t, err)
	assert.Equal(t, "settings/theme", ent.Key.String())
	assert.Equal(t, "dark", ent.Data["value"])
}

func TestUnmarshalStreamImage_OverflowStub(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"pk":           events.NewStringAttribute("users"),
		"sk":           events.NewStringAttribute("id#00000000000000000007"),
		"__overflow__": events.NewStringAttribute("users/3f2a9c"),
	}

	ent, err := UnmarshalStreamImage(image)
	require.NoError(t, err)
	assert.Equal(t, "users/7", ent.Key.String())
	assert.Equal(t, "users/3f2a9c", ent.Data["__overflow__"])
}

func TestUnmarshalStreamImage_Invalid(t *testing.T) {
	_, err := UnmarshalStreamImage(nil)
	assert.Error(t, err)

	_, err = UnmarshalStreamImage(map[string]events.DynamoDBAttributeValue{
		"name": events.NewStringAttribute("alice"),
	})
	assert.Error(t, err, "image without key attributes")
}

func TestConvertStreamAttribute(t *testing.T) {
	cases := []struct {
		name string
		in   events.DynamoDBAttributeValue
		want types.AttributeValue
	}{
		{"string", events.NewStringAttribute("x"), &types.AttributeValueMemberS{Value: "x"}},
		{"number", events.NewNumberAttribute("42"), &types.AttributeValueMemberN{Value: "42"}},
		{"bool", events.NewBooleanAttribute(true), &types.AttributeValueMemberBOOL{Value: true}},
		{"null", events.NewNullAttribute(), &types.AttributeValueMemberNULL{Value: true}},
		{"binary", events.NewBinaryAttribute([]byte("data")), &types.AttributeValueMemberB{Value: []byte("data")}},
		{"string set", events.NewStringSetAttribute([]string{"a", "b"}), &types.AttributeValueMemberSS{Value: []string{"a", "b"}}},
		{"number set", events.NewNumberSetAttribute([]string{"1", "2"}), &types.AttributeValueMemberNS{Value: []string{"1", "2"}}},
		{"binary set", events.NewBinarySetAttribute([][]byte{[]byte("d1")}), &types.AttributeValueMemberBS{Value: [][]byte{[]byte("d1")}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := convertStreamAttribute(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConvertStreamAttribute_Nested(t *testing.T) {
	in := events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{
		"items": events.NewListAttribute([]events.DynamoDBAttributeValue{
			events.NewNumberAttribute("1"),
			events.NewStringAttribute("two"),
		}),
	})

	got, err := convertStreamAttribute(in)
	require.NoError(t, err)

	m, ok := got.(*types.AttributeValueMemberM)
	require.True(t, ok)
	l, ok := m.Value["items"].(*types.AttributeValueMemberL)
	require.True(t, ok)
	require.Len(t, l.Value, 2)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1"}, l.Value[0])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "two"}, l.Value[1])
}
