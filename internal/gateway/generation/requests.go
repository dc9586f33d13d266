package generation

import "fmt"

// Backend endpoints, one per generation kind.
const (
	EndpointCreateImage  = "wavespeed-ai/flux-dev-lora-ultra-fast"
	EndpointEditImage    = "wavespeed-ai/flux-kontext-pro"
	EndpointMergeImages  = "wavespeed-ai/flux-kontext-pro/multi"
	EndpointCreate3D     = "wavespeed-ai/hunyuan3d-v2-multi-view"
	EndpointTextToVideo  = "bytedance/seedance-v1-lite-t2v-480p"
	EndpointImageToVideo = "bytedance/seedance-v1-lite-i2v-480p"
)

// Operation names used in progress updates and classified error messages.
const (
	OpCreateImage  = "image generation"
	OpEditImage    = "image editing"
	OpMergeImages  = "image merging"
	OpCreate3D     = "3D model generation"
	OpTextToVideo  = "text-to-video generation"
	OpImageToVideo = "image-to-video generation"
)

// styleKeywords are appended to the prompt for non-default styles.
var styleKeywords = map[string]string{
	"photorealistic":    ", Natural Human Portrait",
	"realistic":         ", Hyperrealistic",
	"anime":             ", anime style, manga, bright colors, detailed illustration",
	"cinematic":         ", cinematic lighting, dramatic, like a film scene, subtle film grain",
	"fantasy":           ", fantasy art, epic, magical, mythical creatures, imaginary worlds, intricate detail",
	"scifi_futuristic":  ", sci-fi, futuristic, advanced technology, spaceships, future cities, robotics",
	"cyberpunk_neon":    ", cyberpunk, bright neon lights, dystopian urban night, high tech low life, dark atmosphere",
	"vintage_retro":     ", vintage style, retro, classic 60s 70s look, sepia or faded colors, nostalgia",
	"comic_cartoon":     ", comic style, cartoon, bold clean lines, bright solid colors, cell shading, expressive",
	"3d_cgi":            ", Cinematic 3D Fantasy Realism/Final Fantasy Style",
	"studio_ghibli":     ", Studio Ghibli style, anime, beautiful natural scenery, watercolor, whimsical charming atmosphere",
	"miniature_fantasy": ", miniature, diorama, tilt-shift effect, small-scale fantasy world, fine toy-like detail",
}

func applyStyle(prompt, style string) string {
	if style == "default" || prompt == "" {
		return prompt
	}
	return prompt + styleKeywords[style]
}

// UploadedImage is one client-supplied image, carried as raw base64 plus its
// mime type.
type UploadedImage struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

func (u UploadedImage) dataURL() string {
	mime := u.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, u.Base64)
}

func createImagePayload(prompt, style, size string) map[string]any {
	return map[string]any{
		"prompt": applyStyle(prompt, style),
		"size":   size,
		"loras": []map[string]any{
			{"path": "linoyts/yarn_art_Flux_LoRA", "scale": 1},
		},
		"strength":              0.8,
		"num_inference_steps":   28,
		"seed":                  -1,
		"guidance_scale":        3.5,
		"num_images":            1,
		"enable_base64_output":  false,
		"enable_safety_checker": true,
	}
}

func editImagePayload(image UploadedImage, prompt string) map[string]any {
	return map[string]any{
		"image":            image.dataURL(),
		"prompt":           prompt,
		"guidance_scale":   3.5,
		"safety_tolerance": "2",
	}
}

func mergeImagesPayload(images []UploadedImage, prompt string) map[string]any {
	urls := make([]string, len(images))
	for i, img := range images {
		urls[i] = img.dataURL()
	}
	return map[string]any{
		"images":           urls,
		"prompt":           prompt,
		"guidance_scale":   3.5,
		"safety_tolerance": "2",
	}
}

// ThreeDViews holds the named view images for 3D model generation. At least
// one view must be present.
type ThreeDViews struct {
	Front *UploadedImage `json:"front,omitempty"`
	Back  *UploadedImage `json:"back,omitempty"`
	Left  *UploadedImage `json:"left,omitempty"`
}

func (v ThreeDViews) empty() bool {
	return v.Front == nil && v.Back == nil && v.Left == nil
}

func threeDPayload(views ThreeDViews) map[string]any {
	payload := map[string]any{
		"guidance_scale":      7.5,
		"num_inference_steps": 50,
		"octree_resolution":   256,
		"textured_mesh":       true,
	}
	if views.Front != nil {
		payload["front_image_url"] = views.Front.dataURL()
	}
	if views.Back != nil {
		payload["back_image_url"] = views.Back.dataURL()
	}
	if views.Left != nil {
		payload["left_image_url"] = views.Left.dataURL()
	}
	return payload
}

func textToVideoPayload(prompt, aspectRatio string, durationSeconds int) map[string]any {
	return map[string]any{
		"prompt":       prompt,
		"aspect_ratio": aspectRatio,
		"duration":     durationSeconds,
		"seed":         -1,
	}
}

func imageToVideoPayload(image UploadedImage, prompt string, durationSeconds int) map[string]any {
	return map[string]any{
		"image":    image.dataURL(),
		"prompt":   prompt,
		"duration": durationSeconds,
		"seed":     -1,
	}
}
