package gatewaysession

import "encoding/json"

func decodeFrame(data []byte) (map[string]any, error) {
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func encodeFrame(frame map[string]any) ([]byte, error) {
	return json.Marshal(frame)
}
